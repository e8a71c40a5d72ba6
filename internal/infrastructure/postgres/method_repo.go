package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/mappers"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultMethodRepository struct {
	DB *gorm.DB
}

var _ domain.MethodRepository = (*DefaultMethodRepository)(nil)

func NewDefaultMethodRepository(db *gorm.DB) *DefaultMethodRepository {
	return &DefaultMethodRepository{DB: db}
}

func (r *DefaultMethodRepository) GetMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var model models.PaymentMethodModel
	if err := r.DB.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.KindMethodNotFound, "payment method not found", "method_id", id)
		}
		return nil, fmt.Errorf("get method %s: %w", id, err)
	}
	return mappers.ToDomainPaymentMethod(&model), nil
}

// Seed upserts configured methods; config stays the source of truth on every start.
func (r *DefaultMethodRepository) Seed(ctx context.Context, methods []domain.PaymentMethod) error {
	if len(methods) == 0 {
		return nil
	}
	rows := make([]*models.PaymentMethodModel, 0, len(methods))
	for i := range methods {
		rows = append(rows, mappers.ToGORMPaymentMethod(&methods[i]))
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

type DefaultCallbackAuditLog struct {
	DB *gorm.DB
}

var _ domain.CallbackAuditLog = (*DefaultCallbackAuditLog)(nil)

func NewDefaultCallbackAuditLog(db *gorm.DB) *DefaultCallbackAuditLog {
	return &DefaultCallbackAuditLog{DB: db}
}

func (l *DefaultCallbackAuditLog) Record(ctx context.Context, entry domain.CallbackAuditEntry) error {
	return l.DB.WithContext(ctx).Create(mappers.ToGORMCallbackAudit(entry)).Error
}
