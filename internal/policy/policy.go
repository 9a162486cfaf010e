package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/safepilot/internal/amount"
	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/model"
)

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckDeploy enforces the preconditions the intent builder leaves to its
// callers: only verified options are transactable, and the deposit must
// reach the option's minimum.
func CheckDeploy(option model.PoolOption, depositRaw string) error {
	if !option.Verified {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("option %s is read-only; deposit through the protocol directly", option.ID))
	}
	if _, ok := amount.ParseRaw(depositRaw); !ok {
		return clierr.New(clierr.CodeUsage, "deposit must be a base-unit integer string")
	}
	deposit, err := decimal.NewFromString(amount.Format(depositRaw, amount.Scale))
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "parse deposit", err)
	}
	if deposit.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "deposit amount is zero")
	}
	minimum := decimal.NewFromFloat(option.MinDeposit)
	if deposit.LessThan(minimum) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("deposit %s NEAR is below the %s minimum of %s NEAR", deposit.StringFixed(2), option.Name, minimum.String()))
	}
	return nil
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
