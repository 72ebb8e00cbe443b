package chain

import (
	"context"
	"time"
)

// Client defines the execution-layer interface consumed by trade settlement.
type Client interface {
	// SendTransaction submits an opaque signed payload (base64) and returns
	// the transaction signature.
	SendTransaction(ctx context.Context, payload string) (string, error)

	// ConfirmTransaction waits for the signature to reach confirmed
	// commitment, polling with a bounded timeout. A confirmation-layer
	// rejection is returned as *ExecutionError.
	ConfirmTransaction(ctx context.Context, signature string, timeout time.Duration) error

	// GetTransaction retrieves a confirmed transaction with its log
	// messages. Returns nil if the transaction is unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction is a confirmed execution-layer transaction.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// ExecutionError is a confirmation-layer rejection. The detail is surfaced
// verbatim; the core never retries it.
type ExecutionError struct {
	Signature string
	Detail    string
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Detail
}
