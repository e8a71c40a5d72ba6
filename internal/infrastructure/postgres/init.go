package postgres

import (
	"log"

	"github.com/LavaJover/shvark-ledger-service/internal/config"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func MustInitDB(cfg *config.LedgerConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.LedgerDB.Dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to init db: %v\n", err.Error())
	}

	if err := db.AutoMigrate(
		&models.TransactionModel{},
		&models.BalanceModel{},
		&models.PaymentMethodModel{},
		&models.CallbackAuditModel{},
	); err != nil {
		log.Fatalf("failed to migrate db: %v\n", err)
	}

	return db
}
