package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// GormAuditRepository implements posting.AuditRepository using GORM.
// Rows are append-only.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts one audit record
func (r *GormAuditRepository) Append(ctx context.Context, record *posting.AuditRecord) error {
	var m models.PostingAuditModel
	m.FromDomain(record)
	return translateError(r.db.WithContext(ctx).Create(&m).Error)
}

// Find lists an organization's records, newest first unless the filter
// names another whitelisted order
func (r *GormAuditRepository) Find(ctx context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]posting.AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if filter.SourceTransactionID != nil {
		query = query.Where("source_transaction_id = ?", *filter.SourceTransactionID)
	}
	if filter.Result != nil {
		query = query.Where("processing_result = ?", string(*filter.Result))
	}

	var rows []models.PostingAuditModel
	order := ValidateSortField(filter.SortBy, AuditSortFields, "recorded_at") + " " + ValidateSortOrder(filter.SortOrder)
	if err := query.Order(order).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]posting.AuditRecord, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}
