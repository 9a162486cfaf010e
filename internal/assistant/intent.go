package assistant

import (
	"regexp"
	"strings"

	"github.com/ggonzalez94/safepilot/internal/model"
)

// GreetingMessage is the sentinel a client sends when a session opens.
const GreetingMessage = "INITIALIZE_GREETING"

var (
	stakeWords   = regexp.MustCompile(`stake|earn|yield|market|pool|invest|deploy|scan|find`)
	cabinetWords = regexp.MustCompile(`vault|cabinet|portfolio|asset|funds|balance|withdraw`)
)

// DetectIntent classifies a message by keyword. Cabinet words win over stake
// words; anything else is a greeting.
func DetectIntent(message string) model.Intent {
	lower := strings.ToLower(message)
	switch {
	case cabinetWords.MatchString(lower):
		return model.IntentCabinet
	case stakeWords.MatchString(lower):
		return model.IntentStake
	default:
		return model.IntentGreeting
	}
}

// resolveIntent picks the reply intent. A keyword match is authoritative;
// the formatter may only refine a greeting, and only with a known intent.
func resolveIntent(keyword, formatted model.Intent) model.Intent {
	if keyword != model.IntentGreeting {
		return keyword
	}
	if formatted.Valid() {
		return formatted
	}
	return model.IntentGreeting
}
