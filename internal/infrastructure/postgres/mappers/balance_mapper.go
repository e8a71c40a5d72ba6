package mappers

import (
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/models"
)

func ToDomainBalance(model *models.BalanceModel) *domain.Balance {
	return &domain.Balance{
		Key: domain.BalanceKey{
			UserID:   model.UserID,
			Currency: model.Currency,
			Kind:     domain.BalanceKind(model.Kind),
		},
		Amount:    model.Amount,
		Version:   model.Version,
		UpdatedAt: model.UpdatedAt,
	}
}

func ToDomainPaymentMethod(model *models.PaymentMethodModel) *domain.PaymentMethod {
	return &domain.PaymentMethod{
		ID:         model.ID,
		Name:       model.Name,
		Provider:   model.Provider,
		SubMethod:  model.SubMethod,
		Direction:  domain.Direction(model.Direction),
		MinAmount:  model.MinAmount,
		MaxAmount:  model.MaxAmount,
		Enabled:    model.Enabled,
		AutoPayout: model.AutoPayout,
	}
}

func ToGORMPaymentMethod(m *domain.PaymentMethod) *models.PaymentMethodModel {
	return &models.PaymentMethodModel{
		ID:         m.ID,
		Name:       m.Name,
		Provider:   m.Provider,
		SubMethod:  m.SubMethod,
		Direction:  string(m.Direction),
		MinAmount:  m.MinAmount,
		MaxAmount:  m.MaxAmount,
		Enabled:    m.Enabled,
		AutoPayout: m.AutoPayout,
	}
}

func ToGORMCallbackAudit(e domain.CallbackAuditEntry) *models.CallbackAuditModel {
	return &models.CallbackAuditModel{
		ID:          e.ID,
		Provider:    e.Provider,
		PayloadHash: e.PayloadHash,
		Result:      e.Result,
		Error:       e.Error,
		ReceivedAt:  e.ReceivedAt,
	}
}
