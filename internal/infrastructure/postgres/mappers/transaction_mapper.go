package mappers

import (
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/models"
)

func ToDomainTransaction(model *models.TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		ID:                   model.ID,
		UserID:               model.UserID,
		Direction:            domain.Direction(model.Direction),
		Status:               domain.TransactionStatus(model.Status),
		UserResponseStatus:   domain.UserResponseStatus(model.UserResponseStatus),
		Amount:               model.Amount,
		Currency:             model.Currency,
		MethodID:             model.MethodID,
		SubMethod:            model.SubMethod,
		Provider:             model.Provider,
		PaymentTransactionID: model.PaymentTransactionID,
		CorrelationLabel:     model.CorrelationLabel,
		Requisite:            model.Requisite,
		FailureReason:        model.FailureReason,
		Version:              model.Version,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}
}

func ToGORMTransaction(tx *domain.Transaction) *models.TransactionModel {
	return &models.TransactionModel{
		ID:                   tx.ID,
		UserID:               tx.UserID,
		Direction:            string(tx.Direction),
		Status:               string(tx.Status),
		UserResponseStatus:   string(tx.UserResponseStatus),
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		MethodID:             tx.MethodID,
		SubMethod:            tx.SubMethod,
		Provider:             tx.Provider,
		PaymentTransactionID: tx.PaymentTransactionID,
		CorrelationLabel:     tx.CorrelationLabel,
		Requisite:            tx.Requisite,
		FailureReason:        tx.FailureReason,
		Version:              tx.Version,
		CreatedAt:            tx.CreatedAt,
		UpdatedAt:            tx.UpdatedAt,
	}
}
