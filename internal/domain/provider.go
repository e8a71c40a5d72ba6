package domain

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderSettings are per-gateway credentials and endpoints. Read-only for the ledger.
type ProviderSettings struct {
	BaseURL        string
	PublicKey      string
	PrivateKey     string
	APIKey         string
	ShopID         string
	CallbackURL    string
	SuccessURL     string
	FailURL        string
	FeePercent     decimal.Decimal
	RequestTimeout time.Duration
}

type PayinOrder struct {
	PaymentURL string
	Handle     string
}

type PayoutStatus string

const (
	// PayoutSubmitted means the gateway accepted the order and will call back.
	PayoutSubmitted PayoutStatus = "SUBMITTED"
	// PayoutManual means an operator has to complete the transfer.
	PayoutManual PayoutStatus = "MANUAL"
	// PayoutCompleted means the gateway settled synchronously.
	PayoutCompleted PayoutStatus = "COMPLETED"
)

type PayoutResult struct {
	Status  PayoutStatus
	Handle  string
	Message string
}

// CallbackRequest is the raw webhook delivery as received over HTTP.
type CallbackRequest struct {
	Header   http.Header
	Query    url.Values
	Form     url.Values
	Body     []byte
	RemoteIP string
}

// CallbackReply is what the gateway expects back. Gateways interpret anything but their
// acknowledgement as a reason to redeliver.
type CallbackReply struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ProviderAdapter is implemented once per gateway.
type ProviderAdapter interface {
	Name() string
	CreatePayinOrder(ctx context.Context, tx *Transaction) (*PayinOrder, error)
	CreatePayoutProcess(ctx context.Context, tx *Transaction) (*PayoutResult, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackReply, error)
}

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "SUCCESS"
	OutcomeFailed  CallbackOutcome = "FAILED"
	OutcomePending CallbackOutcome = "PENDING"
)

// Callback is a parsed gateway notification. Verify checks the authenticity proof over the
// exact payload; it runs inside the atomic unit after the idempotency guard.
type Callback struct {
	Provider    string
	Lookup      TransactionLookup
	Verify      func(tx *Transaction) error
	Amount      decimal.Decimal
	Currency    string
	Outcome     CallbackOutcome
	ExternalRef string
	Reason      string
}

type AckStatus string

const (
	AckApplied          AckStatus = "APPLIED"
	AckAlreadyProcessed AckStatus = "ALREADY_PROCESSED"
	AckPending          AckStatus = "PENDING"
)

type CallbackAck struct {
	Status      AckStatus
	Transaction *Transaction
	// ManualReview marks an authentic success report for a payin already failed locally,
	// typically a late payment after expiry. The ledger is not touched; an operator decides.
	ManualReview bool
}

// TransactionReconciler is the slice of the lifecycle manager adapters depend on.
type TransactionReconciler interface {
	AttachProviderHandle(ctx context.Context, txID, handle string) error
	Reconcile(ctx context.Context, cb Callback) (*CallbackAck, error)
}
