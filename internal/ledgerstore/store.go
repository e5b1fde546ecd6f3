// Package ledgerstore is the durable keyed persistence behind the ledger:
// the whole invoice collection is loaded at session start and written back,
// collection-replacing and idempotent, after every mutation.
package ledgerstore

import (
	"context"

	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	"gorm.io/gorm"
)

type Store interface {
	Load(ctx context.Context) ([]invoicedomain.Invoice, error)
	Replace(ctx context.Context, invoices []invoicedomain.Invoice) error
}

type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&invoicedomain.Invoice{}, &invoicedomain.Installment{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Load returns the full collection in stored order, installments ordered by
// sequence number.
func (s *GormStore) Load(ctx context.Context) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_number ASC")
		}).
		Order("created_at ASC, id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// Replace persists the given collection as the new authoritative state.
func (s *GormStore) Replace(ctx context.Context, invoices []invoicedomain.Invoice) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := session.Delete(&invoicedomain.Installment{}).Error; err != nil {
			return err
		}
		if err := session.Delete(&invoicedomain.Invoice{}).Error; err != nil {
			return err
		}
		if len(invoices) == 0 {
			return nil
		}
		return tx.Create(&invoices).Error
	})
}
