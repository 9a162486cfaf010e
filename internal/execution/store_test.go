package execution

import (
	"encoding/json"
	"path/filepath"
	"testing"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "intents.db"), filepath.Join(dir, "intents.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func plannedDeploy() Intent {
	intent := NewIntent(NewIntentID(), IntentKindDeploy)
	intent.SignerID = "alice.near"
	intent.ReceiverID = "linear-protocol.near"
	intent.MethodName = "deposit_and_stake"
	intent.Args = json.RawMessage(`{}`)
	intent.Deposit = "5000000000000000000000000"
	intent.DisplayDeposit = "5.00"
	intent.Gas = "300000000000000"
	return intent
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	intent := plannedDeploy()
	if err := store.Save(intent); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(intent.IntentID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ReceiverID != "linear-protocol.near" || got.Deposit != intent.Deposit {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if string(got.Args) != "{}" {
		t.Fatalf("expected args to round trip, got %s", got.Args)
	}

	got.Status = IntentStatusSuccess
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	done, err := store.List(string(IntentStatusSuccess), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(done) != 1 {
		t.Fatalf("expected one successful intent, got %d", len(done))
	}
	planned, err := store.List(string(IntentStatusPlanned), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(planned) != 0 {
		t.Fatalf("expected no planned intents, got %d", len(planned))
	}
}

func TestStoreGetMissingIntent(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("int_missing")
	if !clierr.Is(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStoreClaimIsConsumeOnce(t *testing.T) {
	store := openTestStore(t)
	intent := plannedDeploy()
	if err := store.Save(intent); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	claimed, err := store.Claim(intent.IntentID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.Status != IntentStatusProcessing {
		t.Fatalf("expected processing, got %s", claimed.Status)
	}
	if claimed.Outcome == nil || claimed.Outcome.Status != OutcomeProcessing {
		t.Fatalf("expected PROCESSING outcome, got %+v", claimed.Outcome)
	}

	_, err = store.Claim(intent.IntentID)
	if !clierr.Is(err, clierr.CodeConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}
}
