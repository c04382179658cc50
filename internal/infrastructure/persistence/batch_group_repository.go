package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBatchGroupRepository implements posting.BatchGroupRepository using GORM.
// The locking methods only hold their row lock when r.db is a transaction.
type GormBatchGroupRepository struct {
	db *gorm.DB
}

// NewGormBatchGroupRepository creates a new GormBatchGroupRepository
func NewGormBatchGroupRepository(db *gorm.DB) *GormBatchGroupRepository {
	return &GormBatchGroupRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormBatchGroupRepository) WithTx(tx *gorm.DB) *GormBatchGroupRepository {
	return &GormBatchGroupRepository{db: tx}
}

// LockOrCreateOpen inserts the candidate unless an OPEN group already holds
// its key, then locks whichever row won. Concurrent callers block on the
// partial unique index until the winner commits.
func (r *GormBatchGroupRepository) LockOrCreateOpen(ctx context.Context, candidate *posting.BatchGroup) (*posting.BatchGroup, error) {
	var m models.BatchGroupModel
	m.FromDomain(candidate)
	m.Members = nil

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "transaction_type"},
				{Name: "batch_date"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "status = 'OPEN'"},
			}},
			DoNothing: true,
		}).
		Create(&m).Error
	if err != nil {
		return nil, translateError(err)
	}

	key := candidate.Key()
	var locked models.BatchGroupModel
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND transaction_type = ? AND batch_date = ? AND status = ?",
			key.OrganizationID, string(key.TransactionType), key.Date, string(posting.BatchStatusOpen)).
		First(&locked).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.withMembers(ctx, &locked)
}

// LockByID loads a group with a row lock
func (r *GormBatchGroupRepository) LockByID(ctx context.Context, orgID, id uuid.UUID) (*posting.BatchGroup, error) {
	var m models.BatchGroupModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.withMembers(ctx, &m)
}

// AddMember inserts the member row and stores the group's running total
func (r *GormBatchGroupRepository) AddMember(ctx context.Context, group *posting.BatchGroup, member posting.BatchMember) error {
	row := models.MemberRow(group.ID, member)
	db := r.db.WithContext(ctx)
	if err := db.Create(&row).Error; err != nil {
		return translateError(err)
	}
	return db.Model(&models.BatchGroupModel{}).
		Where("id = ?", group.ID).
		Updates(map[string]any{
			"running_total": group.RunningTotal,
			"base_currency": group.BaseCurrency.String(),
			"base_total":    group.BaseTotal,
			"version":       group.Version,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// MarkFlushed stores the FLUSHED status and links every member to the journal
func (r *GormBatchGroupRepository) MarkFlushed(ctx context.Context, group *posting.BatchGroup) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.BatchGroupModel{}).
		Where("id = ?", group.ID).
		Updates(map[string]any{
			"status":           string(group.Status),
			"journal_entry_id": group.JournalEntryID,
			"flushed_at":       group.FlushedAt,
			"running_total":    group.RunningTotal,
			"version":          group.Version,
			"updated_at":       time.Now().UTC(),
		}).Error; err != nil {
		return err
	}
	return db.Model(&models.BatchedTransactionRow{}).
		Where("batch_group_id = ?", group.ID).
		Updates(map[string]any{
			"batched":          true,
			"journal_entry_id": group.JournalEntryID,
		}).Error
}

// FindByID finds a group with its members
func (r *GormBatchGroupRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*posting.BatchGroup, error) {
	var m models.BatchGroupModel
	err := r.db.WithContext(ctx).
		Preload("Members", orderedMembers).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// HasMember reports whether the organization already batched the transaction
func (r *GormBatchGroupRepository) HasMember(ctx context.Context, orgID, transactionID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BatchedTransactionRow{}).
		Joins("JOIN gl_batch_groups ON gl_batch_groups.id = gl_batched_transactions.batch_group_id").
		Where("gl_batch_groups.organization_id = ? AND gl_batched_transactions.transaction_id = ?", orgID, transactionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindStaleOpen lists OPEN groups dated before the cutoff, oldest first
func (r *GormBatchGroupRepository) FindStaleOpen(ctx context.Context, before time.Time, limit int) ([]posting.BatchGroup, error) {
	var rows []models.BatchGroupModel
	query := r.db.WithContext(ctx).
		Preload("Members", orderedMembers).
		Where("status = ? AND batch_date < ?", string(posting.BatchStatusOpen), before).
		Order("batch_date, created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]posting.BatchGroup, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func (r *GormBatchGroupRepository) withMembers(ctx context.Context, m *models.BatchGroupModel) (*posting.BatchGroup, error) {
	if err := r.db.WithContext(ctx).
		Where("batch_group_id = ?", m.ID).
		Order("sequence").
		Find(&m.Members).Error; err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

func orderedMembers(db *gorm.DB) *gorm.DB {
	return db.Order("sequence")
}
