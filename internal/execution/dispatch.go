package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/metrics"
)

// Dispatcher sends stored intents through a wallet exactly once and records
// the classified outcome. It never retries.
type Dispatcher struct {
	store  *Store
	wallet Wallet
	logger *slog.Logger
}

func NewDispatcher(store *Store, wallet Wallet, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, wallet: wallet, logger: logger}
}

// Submit claims the intent, broadcasts it and persists the outcome. Broadcast
// failures are reported in the returned intent's Outcome, not as an error.
// Once claimed, the broadcast ignores cancellation of ctx so a dropped caller
// cannot turn a sent transaction into a recorded failure; the wallet's own
// timeout bounds the call.
func (d *Dispatcher) Submit(ctx context.Context, intentID string) (Intent, error) {
	if d.wallet == nil {
		return Intent{}, clierr.New(clierr.CodeUsage, "no wallet configured; set signer.url or --signer-url")
	}
	current, err := d.store.Get(intentID)
	if err != nil {
		return Intent{}, err
	}
	if signer := strings.TrimSpace(d.wallet.AccountID()); signer != "" && !strings.EqualFold(signer, current.SignerID) {
		return Intent{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("wallet account %s does not match intent signer %s", signer, current.SignerID))
	}
	intent, err := d.store.Claim(intentID)
	if err != nil {
		return Intent{}, err
	}

	res, sendErr := d.wallet.SignAndSendTransaction(context.WithoutCancel(ctx), intent.Transaction())
	outcome := Classify(sendErr)
	outcome.TxHash = res.TxHash
	intent.Outcome = &outcome
	intent.Status = StatusFor(outcome.Status)
	intent.Touch()
	metrics.TxOutcomes.WithLabelValues(string(outcome.Status)).Inc()

	switch outcome.Status {
	case OutcomeAmbiguousSuccess:
		d.logger.Warn("broadcast result ambiguous", "intent", intent.IntentID, "receiver", intent.ReceiverID, "err", sendErr)
	case OutcomeFailed:
		d.logger.Error("broadcast failed", "intent", intent.IntentID, "receiver", intent.ReceiverID, "err", sendErr)
	default:
		d.logger.Info("broadcast confirmed", "intent", intent.IntentID, "receiver", intent.ReceiverID, "tx", res.TxHash)
	}

	if err := d.store.Save(intent); err != nil {
		return intent, clierr.Wrap(clierr.CodeInternal, "record intent outcome", err)
	}
	return intent, nil
}

// Record stores an outcome reported by an external signer, for flows where
// the wallet runs outside this process. The intent must not already be
// terminal.
func (d *Dispatcher) Record(intentID string, txHash string, sendErr error) (Intent, error) {
	var outcome Outcome
	intent, err := d.store.Update(intentID, func(intent *Intent) error {
		switch intent.Status {
		case IntentStatusPlanned, IntentStatusProcessing:
		default:
			return clierr.New(clierr.CodeConflict, fmt.Sprintf("intent %s already has outcome %s", intentID, intent.Status))
		}
		outcome = Classify(sendErr)
		outcome.TxHash = strings.TrimSpace(txHash)
		intent.Outcome = &outcome
		intent.Status = StatusFor(outcome.Status)
		return nil
	})
	if err != nil {
		return Intent{}, err
	}
	metrics.TxOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	return intent, nil
}
