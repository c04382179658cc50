package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// GLTransactionModel is a posted journal header
type GLTransactionModel struct {
	OrganizationAggregateModel
	SourceTransactionIDs []uuid.UUID         `gorm:"type:jsonb;serializer:json;not null"`
	TransactionType      string              `gorm:"type:varchar(100);not null;index:idx_gl_transactions_org_type"`
	SmartCode            string              `gorm:"type:varchar(255);not null"`
	SourceSmartCode      string              `gorm:"type:varchar(255);not null"`
	TransactionDate      time.Time           `gorm:"not null"`
	PostingPeriod        string              `gorm:"type:char(7);not null;index"`
	Currency             string              `gorm:"type:char(3);not null"`
	BaseCurrency         string              `gorm:"type:char(3);not null"`
	ExchangeRate         decimal.Decimal     `gorm:"type:decimal(20,8);not null"`
	BaseAmount           decimal.Decimal     `gorm:"type:decimal(20,4);not null"`
	Method               string              `gorm:"type:varchar(30);not null"`
	RuleVersion          string              `gorm:"type:varchar(50)"`
	Confidence           float64             `gorm:"not null"`
	Model                string              `gorm:"type:varchar(100)"`
	BatchGroupID         *uuid.UUID          `gorm:"type:uuid;index"`
	Status               string              `gorm:"type:varchar(20);not null"`
	PostedAt             *time.Time          `gorm:""`
	Description          string              `gorm:"type:text"`
	Lines                []GLTransactionLine `gorm:"foreignKey:TransactionID;constraint:OnDelete:RESTRICT"`
}

// TableName returns the table name for GORM
func (GLTransactionModel) TableName() string {
	return "gl_transactions"
}

// GLTransactionLine is one debit or credit line of a journal
type GLTransactionLine struct {
	TransactionID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	LineNumber    int             `gorm:"primaryKey"`
	AccountCode   string          `gorm:"type:varchar(50);not null;index"`
	AccountName   string          `gorm:"type:varchar(200)"`
	DebitAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CreditAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency      string          `gorm:"type:char(3);not null"`
	Description   string          `gorm:"type:text"`
	SmartCode     string          `gorm:"type:varchar(255);not null"`
}

// TableName returns the table name for GORM
func (GLTransactionLine) TableName() string {
	return "gl_transaction_lines"
}

// FromDomain populates the model from a domain journal
func (m *GLTransactionModel) FromDomain(j *posting.JournalEntry) {
	m.FromDomainAggregate(j.OrganizationAggregateRoot)
	m.UpdatedAt = j.CreatedAt
	if j.PostedAt != nil {
		m.UpdatedAt = *j.PostedAt
	}
	m.SourceTransactionIDs = j.SourceTransactionIDs
	if m.SourceTransactionIDs == nil {
		m.SourceTransactionIDs = []uuid.UUID{}
	}
	m.TransactionType = string(j.TransactionType)
	m.SmartCode = j.SmartCode.String()
	m.SourceSmartCode = j.SourceSmartCode.String()
	m.TransactionDate = j.TransactionDate
	m.PostingPeriod = j.PostingPeriod
	m.Currency = j.Currency.String()
	m.BaseCurrency = j.BaseCurrency.String()
	m.ExchangeRate = j.ExchangeRate
	m.BaseAmount = j.BaseAmount
	m.Method = string(j.Method)
	m.RuleVersion = j.RuleVersion
	m.Confidence = j.Confidence
	m.Model = j.Model
	m.BatchGroupID = j.BatchGroupID
	m.Status = string(j.Status)
	m.PostedAt = j.PostedAt
	m.Description = j.Description

	m.Lines = make([]GLTransactionLine, len(j.Lines))
	for i, l := range j.Lines {
		m.Lines[i] = GLTransactionLine{
			TransactionID: j.ID,
			LineNumber:    l.LineNumber,
			AccountCode:   l.AccountCode,
			AccountName:   l.AccountName,
			DebitAmount:   l.DebitAmount,
			CreditAmount:  l.CreditAmount,
			Currency:      l.Currency.String(),
			Description:   l.Description,
			SmartCode:     l.SmartCode.String(),
		}
	}
}

// ToDomain converts the model to a domain journal
func (m *GLTransactionModel) ToDomain() *posting.JournalEntry {
	j := &posting.JournalEntry{
		SourceTransactionIDs: m.SourceTransactionIDs,
		TransactionType:      posting.TransactionType(m.TransactionType),
		SmartCode:            posting.SmartCode(m.SmartCode),
		SourceSmartCode:      posting.SmartCode(m.SourceSmartCode),
		TransactionDate:      m.TransactionDate.UTC(),
		PostingPeriod:        m.PostingPeriod,
		Currency:             valueobject.Currency(m.Currency),
		BaseCurrency:         valueobject.Currency(m.BaseCurrency),
		ExchangeRate:         m.ExchangeRate,
		BaseAmount:           m.BaseAmount,
		Method:               posting.Method(m.Method),
		RuleVersion:          m.RuleVersion,
		Confidence:           m.Confidence,
		Model:                m.Model,
		BatchGroupID:         m.BatchGroupID,
		Status:               posting.JournalStatus(m.Status),
		PostedAt:             m.PostedAt,
		Description:          m.Description,
		Lines:                make([]posting.JournalLine, len(m.Lines)),
	}
	m.PopulateAggregate(&j.OrganizationAggregateRoot)
	for i, l := range m.Lines {
		j.Lines[i] = posting.JournalLine{
			LineNumber:   l.LineNumber,
			AccountCode:  l.AccountCode,
			AccountName:  l.AccountName,
			DebitAmount:  l.DebitAmount,
			CreditAmount: l.CreditAmount,
			Currency:     valueobject.Currency(l.Currency),
			Description:  l.Description,
			SmartCode:    posting.SmartCode(l.SmartCode),
		}
	}
	return j
}

// BatchGroupModel is a batch accumulator. The partial unique index that
// keeps one OPEN row per key is created by the migrations and AutoMigrate.
type BatchGroupModel struct {
	OrganizationAggregateModel
	TransactionType string                  `gorm:"type:varchar(100);not null"`
	BatchDate       time.Time               `gorm:"type:date;not null"`
	Currency        string                  `gorm:"type:char(3);not null"`
	SourceSmartCode string                  `gorm:"type:varchar(255);not null"`
	RunningTotal    decimal.Decimal         `gorm:"type:decimal(20,4);not null"`
	BaseCurrency    string                  `gorm:"type:varchar(3);not null;default:''"`
	BaseTotal       decimal.Decimal         `gorm:"type:decimal(20,4);not null;default:0"`
	Status          string                  `gorm:"type:varchar(20);not null;index"`
	JournalEntryID  *uuid.UUID              `gorm:"type:uuid"`
	FlushedAt       *time.Time              `gorm:""`
	Members         []BatchedTransactionRow `gorm:"foreignKey:BatchGroupID;constraint:OnDelete:RESTRICT"`
}

// TableName returns the table name for GORM
func (BatchGroupModel) TableName() string {
	return "gl_batch_groups"
}

// BatchedTransactionRow is one source transaction held by a batch group
type BatchedTransactionRow struct {
	BatchGroupID   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID  uuid.UUID       `gorm:"type:uuid;primaryKey;index"`
	Sequence       int             `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BaseAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	SmartCode      string          `gorm:"type:varchar(255);not null"`
	Batched        bool            `gorm:"not null"`
	JournalEntryID *uuid.UUID      `gorm:"type:uuid"`
	AddedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchedTransactionRow) TableName() string {
	return "gl_batched_transactions"
}

// FromDomain populates the model from a domain batch group
func (m *BatchGroupModel) FromDomain(g *posting.BatchGroup) {
	m.FromDomainAggregate(g.OrganizationAggregateRoot)
	m.UpdatedAt = time.Now().UTC()
	m.TransactionType = string(g.TransactionType)
	m.BatchDate = g.BatchDate
	m.Currency = g.Currency.String()
	m.SourceSmartCode = g.SourceSmartCode.String()
	m.RunningTotal = g.RunningTotal
	m.BaseCurrency = g.BaseCurrency.String()
	m.BaseTotal = g.BaseTotal
	m.Status = string(g.Status)
	m.JournalEntryID = g.JournalEntryID
	m.FlushedAt = g.FlushedAt
	m.Members = make([]BatchedTransactionRow, len(g.Members))
	for i, mem := range g.Members {
		m.Members[i] = MemberRow(g.ID, mem)
	}
}

// MemberRow maps one domain member to its row
func MemberRow(groupID uuid.UUID, mem posting.BatchMember) BatchedTransactionRow {
	return BatchedTransactionRow{
		BatchGroupID:   groupID,
		TransactionID:  mem.TransactionID,
		Sequence:       mem.Sequence,
		Amount:         mem.Amount,
		BaseAmount:     mem.BaseAmount,
		SmartCode:      mem.SmartCode.String(),
		Batched:        mem.Batched,
		JournalEntryID: mem.JournalEntryID,
		AddedAt:        mem.AddedAt,
	}
}

// ToDomain converts the model to a domain batch group
func (m *BatchGroupModel) ToDomain() *posting.BatchGroup {
	d := m.BatchDate.UTC()
	g := &posting.BatchGroup{
		TransactionType: posting.TransactionType(m.TransactionType),
		BatchDate:       time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		Currency:        valueobject.Currency(m.Currency),
		SourceSmartCode: posting.SmartCode(m.SourceSmartCode),
		RunningTotal:    m.RunningTotal,
		BaseCurrency:    valueobject.Currency(m.BaseCurrency),
		BaseTotal:       m.BaseTotal,
		Status:          posting.BatchStatus(m.Status),
		JournalEntryID:  m.JournalEntryID,
		FlushedAt:       m.FlushedAt,
		Members:         make([]posting.BatchMember, len(m.Members)),
	}
	m.PopulateAggregate(&g.OrganizationAggregateRoot)
	for i, r := range m.Members {
		g.Members[i] = posting.BatchMember{
			TransactionID:  r.TransactionID,
			Sequence:       r.Sequence,
			Amount:         r.Amount,
			BaseAmount:     r.BaseAmount,
			SmartCode:      posting.SmartCode(r.SmartCode),
			Batched:        r.Batched,
			JournalEntryID: r.JournalEntryID,
			AddedAt:        r.AddedAt,
		}
	}
	return g
}

// PostingAuditModel is one ingest outcome
type PostingAuditModel struct {
	BaseModel
	OrganizationID      uuid.UUID  `gorm:"type:uuid;not null;index:idx_gl_posting_audit_org_recorded,priority:1"`
	SourceTransactionID *uuid.UUID `gorm:"type:uuid;index"`
	SourceSmartCode     string     `gorm:"type:varchar(255);not null"`
	TransactionType     string     `gorm:"type:varchar(100);not null"`
	ProcessingResult    string     `gorm:"type:varchar(50);not null;index"`
	Method              string     `gorm:"type:varchar(30)"`
	Confidence          float64    `gorm:"not null"`
	Reason              string     `gorm:"type:text"`
	JournalEntryID      *uuid.UUID `gorm:"type:uuid"`
	BatchGroupID        *uuid.UUID `gorm:"type:uuid"`
	ErrorCode           string     `gorm:"type:varchar(100)"`
	Details             string     `gorm:"type:jsonb"`
	RecordedAt          time.Time  `gorm:"not null;index:idx_gl_posting_audit_org_recorded,priority:2,sort:desc"`
}

// TableName returns the table name for GORM
func (PostingAuditModel) TableName() string {
	return "gl_posting_audit"
}

// FromDomain populates the model from a domain audit record
func (m *PostingAuditModel) FromDomain(r *posting.AuditRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.OrganizationID = r.OrganizationID
	m.SourceTransactionID = r.SourceTransactionID
	m.SourceSmartCode = r.SourceSmartCode.String()
	m.TransactionType = string(r.TransactionType)
	m.ProcessingResult = string(r.ProcessingResult)
	m.Method = string(r.Method)
	m.Confidence = r.Confidence
	m.Reason = r.Reason
	m.JournalEntryID = r.JournalEntryID
	m.BatchGroupID = r.BatchGroupID
	m.ErrorCode = r.ErrorCode
	m.Details = "{}"
	if len(r.Details) > 0 {
		m.Details = string(r.Details)
	}
	m.RecordedAt = r.RecordedAt
}

// ToDomain converts the model to a domain audit record
func (m *PostingAuditModel) ToDomain() *posting.AuditRecord {
	r := &posting.AuditRecord{
		BaseEntity:          shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt},
		OrganizationID:      m.OrganizationID,
		SourceTransactionID: m.SourceTransactionID,
		SourceSmartCode:     posting.SmartCode(m.SourceSmartCode),
		TransactionType:     posting.TransactionType(m.TransactionType),
		ProcessingResult:    posting.ProcessingResult(m.ProcessingResult),
		Method:              posting.Method(m.Method),
		Confidence:          m.Confidence,
		Reason:              m.Reason,
		JournalEntryID:      m.JournalEntryID,
		BatchGroupID:        m.BatchGroupID,
		ErrorCode:           m.ErrorCode,
		RecordedAt:          m.RecordedAt,
	}
	if m.Details != "" && m.Details != "{}" {
		r.Details = []byte(m.Details)
	}
	return r
}
