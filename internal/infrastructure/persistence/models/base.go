package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared"
)

// BaseModel provides the identity columns shared by every table
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

// FromDomainBaseEntity populates BaseModel from a domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
}

// ToDomain converts BaseModel to a domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt}
}

// OrganizationAggregateModel maps an organization scoped aggregate root
type OrganizationAggregateModel struct {
	BaseModel
	UpdatedAt      time.Time `gorm:"not null"`
	Version        int       `gorm:"not null"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// FromDomainAggregate populates the model from a domain aggregate root
func (m *OrganizationAggregateModel) FromDomainAggregate(a shared.OrganizationAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
	m.OrganizationID = a.OrganizationID
}

// PopulateAggregate copies the persisted columns into a domain aggregate root
func (m *OrganizationAggregateModel) PopulateAggregate(a *shared.OrganizationAggregateRoot) {
	a.ID = m.ID
	a.CreatedAt = m.CreatedAt
	a.Version = m.Version
	a.OrganizationID = m.OrganizationID
}
