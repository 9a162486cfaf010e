package execution

import (
	"encoding/json"
	"time"
)

type IntentKind string

type IntentStatus string

type OutcomeStatus string

const (
	IntentKindDeploy   IntentKind = "deploy"
	IntentKindWithdraw IntentKind = "withdraw"
)

// Intent lifecycle: planned -> processing -> {success, ambiguous_success, failed}.
const (
	IntentStatusPlanned    IntentStatus = "planned"
	IntentStatusProcessing IntentStatus = "processing"
	IntentStatusSuccess    IntentStatus = "success"
	IntentStatusAmbiguous  IntentStatus = "ambiguous_success"
	IntentStatusFailed     IntentStatus = "failed"
)

const (
	OutcomeProcessing       OutcomeStatus = "PROCESSING"
	OutcomeSuccess          OutcomeStatus = "SUCCESS"
	OutcomeAmbiguousSuccess OutcomeStatus = "AMBIGUOUS_SUCCESS"
	OutcomeFailed           OutcomeStatus = "FAILED"
)

// FunctionCall is a single contract method invocation. Gas and Deposit are
// base-10 integer strings.
type FunctionCall struct {
	MethodName string `json:"methodName"`
	Args       []byte `json:"args"`
	Gas        string `json:"gas"`
	Deposit    string `json:"deposit"`
}

type Action struct {
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// Transaction is the action descriptor handed to a wallet for signing.
type Transaction struct {
	SignerID   string   `json:"signerId,omitempty"`
	ReceiverID string   `json:"receiverId"`
	Actions    []Action `json:"actions"`
}

type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message,omitempty"`
	TxHash  string        `json:"tx_hash,omitempty"`
}

// Intent is a signable deposit or withdrawal. It is dispatched at most once.
type Intent struct {
	IntentID       string          `json:"intent_id"`
	Kind           IntentKind      `json:"kind"`
	Status         IntentStatus    `json:"status"`
	SignerID       string          `json:"signer_id"`
	ReceiverID     string          `json:"receiver_id"`
	MethodName     string          `json:"method_name"`
	Args           json.RawMessage `json:"args"`
	Deposit        string          `json:"deposit"`
	DisplayDeposit string          `json:"display_deposit"`
	Gas            string          `json:"gas"`
	Approximate    bool            `json:"approximate,omitempty"`
	OptionID       string          `json:"option_id,omitempty"`
	Percent        int             `json:"percent,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Outcome        *Outcome        `json:"outcome,omitempty"`
}

func NewIntent(intentID string, kind IntentKind) Intent {
	now := time.Now().UTC().Format(time.RFC3339)
	return Intent{
		IntentID:  intentID,
		Kind:      kind,
		Status:    IntentStatusPlanned,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (i *Intent) Touch() {
	i.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Transaction renders the intent as a single function-call action.
func (i Intent) Transaction() Transaction {
	args := []byte(i.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}
	return Transaction{
		SignerID:   i.SignerID,
		ReceiverID: i.ReceiverID,
		Actions: []Action{{FunctionCall: &FunctionCall{
			MethodName: i.MethodName,
			Args:       args,
			Gas:        i.Gas,
			Deposit:    i.Deposit,
		}}},
	}
}

// StatusFor maps a classified outcome to the terminal intent status.
func StatusFor(o OutcomeStatus) IntentStatus {
	switch o {
	case OutcomeSuccess:
		return IntentStatusSuccess
	case OutcomeAmbiguousSuccess:
		return IntentStatusAmbiguous
	case OutcomeFailed:
		return IntentStatusFailed
	default:
		return IntentStatusProcessing
	}
}
