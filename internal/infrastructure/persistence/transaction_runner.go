package persistence

import (
	"context"

	"github.com/hera/autojournal/internal/domain/posting"
	"gorm.io/gorm"
)

// GormTransactionRunner implements posting.TransactionRunner. Each call opens
// one database transaction and hands fn repositories bound to it.
type GormTransactionRunner struct {
	db *gorm.DB
}

// NewGormTransactionRunner creates a new GormTransactionRunner
func NewGormTransactionRunner(db *gorm.DB) *GormTransactionRunner {
	return &GormTransactionRunner{db: db}
}

// RunInTx runs fn inside a transaction and commits when fn returns nil
func (r *GormTransactionRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, repos posting.TxRepositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, posting.TxRepositories{
			Journals: NewGormJournalRepository(tx),
			Batches:  NewGormBatchGroupRepository(tx),
		})
	})
}
