// Package mocks holds testify mocks for the domain ports.
package mocks

import (
	"context"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

type TransactionReconciler struct {
	mock.Mock
}

func (m *TransactionReconciler) AttachProviderHandle(ctx context.Context, txID, handle string) error {
	return m.Called(ctx, txID, handle).Error(0)
}

func (m *TransactionReconciler) Reconcile(ctx context.Context, cb domain.Callback) (*domain.CallbackAck, error) {
	args := m.Called(ctx, cb)
	ack, _ := args.Get(0).(*domain.CallbackAck)
	return ack, args.Error(1)
}

type ProviderAdapter struct {
	mock.Mock
}

func (m *ProviderAdapter) Name() string {
	return m.Called().String(0)
}

func (m *ProviderAdapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	args := m.Called(ctx, tx)
	order, _ := args.Get(0).(*domain.PayinOrder)
	return order, args.Error(1)
}

func (m *ProviderAdapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	args := m.Called(ctx, tx)
	res, _ := args.Get(0).(*domain.PayoutResult)
	return res, args.Error(1)
}

func (m *ProviderAdapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(*domain.CallbackReply)
	return reply, args.Error(1)
}

type Notifier struct {
	mock.Mock
}

func (m *Notifier) NotifyDepositSuccess(ctx context.Context, tx *domain.Transaction) {
	m.Called(ctx, tx)
}

func (m *Notifier) NotifyDepositFailure(ctx context.Context, tx *domain.Transaction, reason string) {
	m.Called(ctx, tx, reason)
}

func (m *Notifier) NotifyPayoutFailure(ctx context.Context, tx *domain.Transaction, userMessage string) {
	m.Called(ctx, tx, userMessage)
}

type MethodRepository struct {
	mock.Mock
}

func (m *MethodRepository) GetMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	args := m.Called(ctx, id)
	method, _ := args.Get(0).(*domain.PaymentMethod)
	return method, args.Error(1)
}

type CallbackAuditLog struct {
	mock.Mock
}

func (m *CallbackAuditLog) Record(ctx context.Context, entry domain.CallbackAuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}
