package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormJournalRepository implements posting.JournalRepository using GORM
type GormJournalRepository struct {
	db *gorm.DB
}

// NewGormJournalRepository creates a new GormJournalRepository
func NewGormJournalRepository(db *gorm.DB) *GormJournalRepository {
	return &GormJournalRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormJournalRepository) WithTx(tx *gorm.DB) *GormJournalRepository {
	return &GormJournalRepository{db: tx}
}

// Create inserts the header and its lines. Callers outside a transaction get
// one from GORM's association save.
func (r *GormJournalRepository) Create(ctx context.Context, journal *posting.JournalEntry) error {
	var m models.GLTransactionModel
	m.FromDomain(journal)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// FindByID finds one journal of an organization
func (r *GormJournalRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*posting.JournalEntry, error) {
	var m models.GLTransactionModel
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// FindBySourceTransaction returns the journals that list transactionID as a source
func (r *GormJournalRepository) FindBySourceTransaction(ctx context.Context, orgID, transactionID uuid.UUID) ([]posting.JournalEntry, error) {
	var rows []models.GLTransactionModel
	query := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("organization_id = ?", orgID)

	if r.db.Dialector.Name() == "postgres" {
		query = query.Where("source_transaction_ids @> ?::jsonb", fmt.Sprintf(`["%s"]`, transactionID))
	} else {
		query = query.Where("source_transaction_ids LIKE ?", "%"+transactionID.String()+"%")
	}

	if err := query.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]posting.JournalEntry, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number")
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	default:
		return err
	}
}
