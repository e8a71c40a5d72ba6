package request

type PayinRequest struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	MethodID string `json:"method_id"`
}

type PayoutRequest struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	MethodID  string `json:"method_id"`
	Requisite string `json:"requisite"`
}

type RejectPayoutRequest struct {
	Reason string `json:"reason"`
}

type CompletePayoutRequest struct {
	ExternalRef string `json:"external_ref"`
}

type UserResponseRequest struct {
	Status string `json:"status"`
}
