// Package formatter turns pipeline context into a short conversational reply
// through a hosted language model. The model is an opaque text formatter:
// callers must treat any error as a signal to fall back to a template.
package formatter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	BackendGroq      = "groq"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendNone      = "none"
)

// Request is the context handed to the model.
type Request struct {
	Message     string
	NearAmount  string
	OptionNames []string
}

// Reply is the model's structured answer. Intent is returned as given and
// may be outside the known set.
type Reply struct {
	Text   string       `json:"text"`
	Intent model.Intent `json:"intent"`
}

type Formatter interface {
	Name() string
	Format(ctx context.Context, req Request) (Reply, error)
}

const SystemPrompt = `You are SafePilot.sys, a tactical DeFi interface for NEAR Protocol.
STYLE: Cyberpunk terminal, brief, robotic, military jargon.
INSTRUCTIONS:
1. If user asks about "balance", "wallet", "funds" -> "intent": "CABINET".
2. If user asks to "scan", "stake", "invest", "markets" -> "intent": "STAKE".
3. OUTPUT: JSON ONLY. Structure: { "text": "...", "intent": "..." }`

// UserPrompt renders the single user turn sent with SystemPrompt.
func UserPrompt(req Request) string {
	return fmt.Sprintf("Context: Wallet %s N. Options: %s. User Input: %s",
		req.NearAmount, strings.Join(req.OptionNames, ", "), req.Message)
}

// ParseReply decodes the model content as {"text","intent"}. Anything else,
// including an empty text or an intent outside GREETING, STAKE and CABINET,
// is a payload error.
func ParseReply(content string) (Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Reply{}, clierr.New(clierr.CodePayload, "formatter returned empty content")
	}
	var reply Reply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return Reply{}, clierr.Wrap(clierr.CodePayload, "decode formatter reply", err)
	}
	reply.Text = strings.TrimSpace(reply.Text)
	if reply.Text == "" {
		return Reply{}, clierr.New(clierr.CodePayload, "formatter reply has no text")
	}
	reply.Intent = model.Intent(strings.ToUpper(strings.TrimSpace(string(reply.Intent))))
	if !reply.Intent.Valid() {
		return Reply{}, clierr.New(clierr.CodePayload, fmt.Sprintf("formatter reply has unknown intent %q", reply.Intent))
	}
	return reply, nil
}
