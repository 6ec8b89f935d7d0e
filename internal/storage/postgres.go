// Package storage is the PostgreSQL implementation of the billing store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/config"
	"github.com/dkeye/connecto/internal/domain"
)

type Postgres struct {
	db *gorm.DB
}

func New(cfg config.DatabaseConfig) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&domain.Wallet{}, &domain.Transaction{}, &domain.Profile{}, &domain.Call{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Str("module", "storage").Str("host", cfg.Host).Str("db", cfg.DBName).Msg("connected to PostgreSQL")
	return &Postgres{db: db}, nil
}

func (s *Postgres) Wallet(ctx context.Context, account domain.AccountID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.WithContext(ctx).First(&w, "account_id = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		w = domain.Wallet{AccountID: account, CreatedAt: now, UpdatedAt: now}
		if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		return &w, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Postgres) Profile(ctx context.Context, account domain.AccountID) (*domain.Profile, error) {
	var p domain.Profile
	err := s.db.WithContext(ctx).First(&p, "account_id = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) SaveProfile(ctx context.Context, p *domain.Profile) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// ApplySettlement writes the whole settlement set in one database
// transaction: the call row, every ledger record, both balance moves and
// the updated profile land together or not at all.
func (s *Postgres) ApplySettlement(ctx context.Context, e *billing.LedgerEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.Call != nil {
			if err := tx.Create(e.Call).Error; err != nil {
				return fmt.Errorf("save call: %w", err)
			}
		}
		if e.Debit != nil {
			if err := tx.Create(e.Debit).Error; err != nil {
				return fmt.Errorf("append debit: %w", err)
			}
			if err := setBalance(tx, e.Debit.AccountID, e.PayerBalance); err != nil {
				return err
			}
		}
		for _, t := range []*domain.Transaction{e.Credit, e.Bonus} {
			if t == nil {
				continue
			}
			if err := tx.Create(t).Error; err != nil {
				return fmt.Errorf("append %s: %w", t.Type, err)
			}
		}
		if e.Credit != nil || e.Bonus != nil {
			earner := e.Call.EarnerAccount
			if err := setBalance(tx, earner, e.EarnerBalance); err != nil {
				return err
			}
		}
		if e.Profile != nil {
			if err := tx.Save(e.Profile).Error; err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
		}
		return nil
	})
}

func setBalance(tx *gorm.DB, account domain.AccountID, balance int64) error {
	err := tx.Model(&domain.Wallet{}).
		Where("account_id = ?", account).
		Updates(map[string]interface{}{"balance": balance, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (s *Postgres) AppendTransaction(ctx context.Context, t *domain.Transaction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return setBalance(tx, t.AccountID, t.BalanceAfter)
	})
}

func (s *Postgres) Transactions(ctx context.Context, account domain.AccountID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	var txs []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("account_id = ?", account).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (s *Postgres) Calls(ctx context.Context, account domain.AccountID, limit int) ([]domain.Call, error) {
	if limit <= 0 {
		limit = -1
	}
	var calls []domain.Call
	err := s.db.WithContext(ctx).
		Where("caller_account = ? OR earner_account = ?", account, account).
		Order("created_at DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}
