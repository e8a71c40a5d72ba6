package response

import (
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

type TransactionResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Direction          string    `json:"direction"`
	Status             string    `json:"status"`
	UserResponseStatus string    `json:"user_response_status"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	MethodID           string    `json:"method_id"`
	Provider           string    `json:"provider"`
	ExternalRef        string    `json:"external_ref,omitempty"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func FromTransaction(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                 tx.ID,
		UserID:             tx.UserID,
		Direction:          string(tx.Direction),
		Status:             string(tx.Status),
		UserResponseStatus: string(tx.UserResponseStatus),
		Amount:             tx.Amount.StringFixed(2),
		Currency:           tx.Currency,
		MethodID:           tx.MethodID,
		Provider:           tx.Provider,
		ExternalRef:        tx.PaymentTransactionID,
		FailureReason:      tx.FailureReason,
		CreatedAt:          tx.CreatedAt,
		UpdatedAt:          tx.UpdatedAt,
	}
}

type PayinResponse struct {
	Success     bool                `json:"success"`
	Transaction TransactionResponse `json:"transaction"`
	PaymentURL  string              `json:"payment_url"`
}

type PayoutResponse struct {
	Success     bool                `json:"success"`
	Transaction TransactionResponse `json:"transaction"`
	State       string              `json:"state"`
}

type TransactionEnvelope struct {
	Success     bool                `json:"success"`
	Transaction TransactionResponse `json:"transaction"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}
