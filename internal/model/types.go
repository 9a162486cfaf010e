package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

// Intent is the conversational mode a chat request resolves to.
type Intent string

const (
	IntentGreeting Intent = "GREETING"
	IntentStake    Intent = "STAKE"
	IntentCabinet  Intent = "CABINET"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentGreeting, IntentStake, IntentCabinet:
		return true
	default:
		return false
	}
}

type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// Price holds USD quotes for the native asset and the reference asset (BTC).
type Price struct {
	Native    float64 `json:"near"`
	Reference float64 `json:"btc"`
	Source    string  `json:"source"`
}

// AccountBalance pairs the exact ledger balance with its rounded display form.
// DisplayAmount is never used for transaction math.
type AccountBalance struct {
	RawAmount     string `json:"rawAmount"`
	DisplayAmount string `json:"displayAmount"`
	Known         bool   `json:"known"`
}

type ProtocolPosition struct {
	ProtocolID       string  `json:"protocolId"`
	DisplayName      string  `json:"name"`
	Token            string  `json:"token"`
	RawAmount        string  `json:"rawAmount"`
	DisplayAmount    string  `json:"amount"`
	NativeEquivalent string  `json:"nearValue"`
	ExchangeRate     float64 `json:"exchangeRate"`
}

type PoolOption struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SubName     string   `json:"subName"`
	APY         string   `json:"apy"`
	MinDeposit  float64  `json:"min"`
	Risk        RiskTier `json:"risk"`
	Description string   `json:"desc"`
	ContractID  string   `json:"contract"`
	MethodName  string   `json:"method"`
	Verified    bool     `json:"isVerified"`
}

// Pool is a market pool row as reported by a pool-listing provider.
type Pool struct {
	ID           string   `json:"id"`
	TVL          float64  `json:"tvl"`
	Volume24h    float64  `json:"vol24h"`
	APY          float64  `json:"apy"`
	TokenSymbols []string `json:"token_symbols"`
}

type ChatRequest struct {
	Message   string `json:"message"`
	AccountID string `json:"accountId,omitempty"`
}

// ChatResponse is the request/response contract of the assistant pipeline.
// Portfolio is nil (JSON null) when no position survives the dust filter.
type ChatResponse struct {
	Text       string             `json:"text"`
	Intent     Intent             `json:"intent"`
	Options    []PoolOption       `json:"options"`
	Portfolio  []ProtocolPosition `json:"portfolio"`
	RawBalance string             `json:"rawBalance"`
	Balance    string             `json:"balance,omitempty"`
	Prices     *Price             `json:"prices,omitempty"`
}
