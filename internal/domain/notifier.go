package domain

import "context"

// Notifier delivers user-facing notifications. Calls are fire-and-forget: implementations
// must not block on delivery and failures never roll back a ledger mutation.
type Notifier interface {
	NotifyDepositSuccess(ctx context.Context, tx *Transaction)
	NotifyDepositFailure(ctx context.Context, tx *Transaction, reason string)
	NotifyPayoutFailure(ctx context.Context, tx *Transaction, userMessage string)
}

// TransactionEventSink receives every committed status change.
type TransactionEventSink interface {
	TransactionChanged(ctx context.Context, tx *Transaction)
}
