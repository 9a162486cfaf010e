package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	FailureText = "SYSTEM ERROR: SCANNER FAILED."
	guestPilot  = "GUEST"
)

func greetingText(accountID string, prices model.Price, nearAmount string, optionCount int) string {
	pilot := accountID
	if pilot == "" {
		pilot = guestPilot
	}
	btc := decimal.NewFromFloat(prices.Reference).Round(0).IntPart()
	near := decimal.NewFromFloat(prices.Native).StringFixed(2)
	return fmt.Sprintf("SYSTEMS ONLINE. PILOT: %s\nBTC $%s | NEAR $%s\nLIQUID FUNDS: %s NEAR.\n\nSCAN COMPLETE: %d HIGH-YIELD NODES DETECTED.",
		pilot, groupThousands(btc), near, nearAmount, optionCount)
}

func acknowledgeText(intent model.Intent) string {
	if intent == model.IntentStake {
		return "COMMAND ACKNOWLEDGED: SCANNING DEFI NODES..."
	}
	return "COMMAND ACKNOWLEDGED: ACCESSING CABINET..."
}

// FailureResponse is the well-formed reply used when the pipeline itself
// breaks.
func FailureResponse() model.ChatResponse {
	return model.ChatResponse{
		Text:       FailureText,
		Intent:     model.IntentGreeting,
		Options:    []model.PoolOption{},
		Portfolio:  []model.ProtocolPosition{},
		RawBalance: "0",
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
