package execution

import "context"

// BroadcastResult is what a wallet reports after signing and sending.
type BroadcastResult struct {
	TxHash string `json:"tx_hash"`
}

// Wallet signs and broadcasts a transaction on behalf of its account. Key
// custody lives entirely behind this interface.
type Wallet interface {
	AccountID() string
	SignAndSendTransaction(ctx context.Context, tx Transaction) (BroadcastResult, error)
}

// WalletFunc adapts a function to Wallet for a fixed account.
type WalletFunc struct {
	Account string
	Send    func(ctx context.Context, tx Transaction) (BroadcastResult, error)
}

func (w WalletFunc) AccountID() string { return w.Account }

func (w WalletFunc) SignAndSendTransaction(ctx context.Context, tx Transaction) (BroadcastResult, error) {
	return w.Send(ctx, tx)
}

// TransportError marks a failure to reach the wallet's signing service, as
// opposed to an error the service reported about the transaction.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "wallet transport failed"
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
