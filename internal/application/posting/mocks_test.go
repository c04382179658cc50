package posting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// MockJournalProposer is a mock implementation of posting.JournalProposer
type MockJournalProposer struct {
	mock.Mock
}

func (m *MockJournalProposer) ProposeJournal(ctx context.Context, event *posting.FinanceEvent, chart []posting.AccountRef) (*posting.JournalProposal, error) {
	args := m.Called(ctx, event, chart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posting.JournalProposal), args.Error(1)
}

// MockAuditRepository is a mock implementation of posting.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, record *posting.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) Find(ctx context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]posting.AuditRecord, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]posting.AuditRecord), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) IsClaimed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// memoryAudit records audit rows in memory
type memoryAudit struct {
	mu      sync.Mutex
	records []posting.AuditRecord
}

func (a *memoryAudit) Append(_ context.Context, record *posting.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *record)
	return nil
}

func (a *memoryAudit) Find(_ context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]posting.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []posting.AuditRecord
	for _, r := range a.records {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *memoryAudit) all() []posting.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]posting.AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

// memoryLedger is an in-memory TransactionRunner. Transactions are fully
// serialized, which stands in for row locks, and roll back on error.
type memoryLedger struct {
	txMu     sync.Mutex
	journals map[uuid.UUID]posting.JournalEntry
	groups   map[uuid.UUID]posting.BatchGroup
	failNext error
	txCount  int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		journals: make(map[uuid.UUID]posting.JournalEntry),
		groups:   make(map[uuid.UUID]posting.BatchGroup),
	}
}

func (l *memoryLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, repos posting.TxRepositories) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.txCount++

	journals := make(map[uuid.UUID]posting.JournalEntry, len(l.journals))
	for k, v := range l.journals {
		journals[k] = v
	}
	groups := make(map[uuid.UUID]posting.BatchGroup, len(l.groups))
	for k, v := range l.groups {
		v.Members = append([]posting.BatchMember(nil), v.Members...)
		groups[k] = v
	}
	tx := &memoryTx{ledger: l, journals: journals, groups: groups}
	if err := fn(ctx, posting.TxRepositories{Journals: tx, Batches: memoryBatchTx{tx}}); err != nil {
		return err
	}
	l.journals = journals
	l.groups = groups
	return nil
}

func (l *memoryLedger) journalCount() int {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	return len(l.journals)
}

func (l *memoryLedger) journalList() []posting.JournalEntry {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	out := make([]posting.JournalEntry, 0, len(l.journals))
	for _, j := range l.journals {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

func (l *memoryLedger) groupList() []posting.BatchGroup {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	out := make([]posting.BatchGroup, 0, len(l.groups))
	for _, g := range l.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// memoryTx implements the repositories against one transaction's snapshot
type memoryTx struct {
	ledger   *memoryLedger
	journals map[uuid.UUID]posting.JournalEntry
	groups   map[uuid.UUID]posting.BatchGroup
}

func (t *memoryTx) Create(_ context.Context, journal *posting.JournalEntry) error {
	if err := t.ledger.failNext; err != nil {
		t.ledger.failNext = nil
		return err
	}
	if _, ok := t.journals[journal.ID]; ok {
		return shared.ErrAlreadyExists
	}
	t.journals[journal.ID] = *journal
	return nil
}

func (t *memoryTx) FindByID(_ context.Context, orgID, id uuid.UUID) (*posting.JournalEntry, error) {
	j, ok := t.journals[id]
	if !ok || j.OrganizationID != orgID {
		return nil, shared.ErrNotFound
	}
	return &j, nil
}

func (t *memoryTx) FindBySourceTransaction(_ context.Context, orgID, txID uuid.UUID) ([]posting.JournalEntry, error) {
	var out []posting.JournalEntry
	for _, j := range t.journals {
		if j.OrganizationID != orgID {
			continue
		}
		for _, id := range j.SourceTransactionIDs {
			if id == txID {
				out = append(out, j)
				break
			}
		}
	}
	return out, nil
}

// memoryBatchTx exposes a memoryTx's groups as a BatchGroupRepository
type memoryBatchTx struct {
	*memoryTx
}

func (t memoryBatchTx) FindByID(_ context.Context, orgID, id uuid.UUID) (*posting.BatchGroup, error) {
	g, ok := t.groups[id]
	if !ok || g.OrganizationID != orgID {
		return nil, shared.ErrNotFound
	}
	g.Members = append([]posting.BatchMember(nil), g.Members...)
	return &g, nil
}

func (t memoryBatchTx) HasMember(_ context.Context, orgID, txID uuid.UUID) (bool, error) {
	for _, g := range t.groups {
		if g.OrganizationID != orgID {
			continue
		}
		for _, m := range g.Members {
			if m.TransactionID == txID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memoryTx) LockOrCreateOpen(_ context.Context, candidate *posting.BatchGroup) (*posting.BatchGroup, error) {
	key := candidate.Key()
	for _, g := range t.groups {
		if g.Status == posting.BatchStatusOpen && g.Key() == key {
			g := g
			return &g, nil
		}
	}
	t.groups[candidate.ID] = *candidate
	c := *candidate
	return &c, nil
}

func (t *memoryTx) LockByID(_ context.Context, orgID, id uuid.UUID) (*posting.BatchGroup, error) {
	g, ok := t.groups[id]
	if !ok || g.OrganizationID != orgID {
		return nil, shared.ErrNotFound
	}
	return &g, nil
}

func (t *memoryTx) AddMember(_ context.Context, group *posting.BatchGroup, _ posting.BatchMember) error {
	g := *group
	g.Members = append([]posting.BatchMember(nil), group.Members...)
	t.groups[group.ID] = g
	return nil
}

func (t *memoryTx) MarkFlushed(_ context.Context, group *posting.BatchGroup) error {
	g := *group
	g.Members = append([]posting.BatchMember(nil), group.Members...)
	t.groups[group.ID] = g
	return nil
}

func (t *memoryTx) FindStaleOpen(_ context.Context, before time.Time, limit int) ([]posting.BatchGroup, error) {
	var out []posting.BatchGroup
	for _, g := range t.groups {
		if g.Status == posting.BatchStatusOpen && g.BatchDate.Before(before) {
			out = append(out, g)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// journalReader exposes committed journals as a JournalRepository
type journalReader struct {
	ledger *memoryLedger
}

func (r journalReader) Create(ctx context.Context, journal *posting.JournalEntry) error {
	return r.ledger.RunInTx(ctx, func(ctx context.Context, repos posting.TxRepositories) error {
		return repos.Journals.Create(ctx, journal)
	})
}

func (r journalReader) FindByID(ctx context.Context, orgID, id uuid.UUID) (*posting.JournalEntry, error) {
	var out *posting.JournalEntry
	err := r.ledger.RunInTx(ctx, func(ctx context.Context, repos posting.TxRepositories) error {
		var err error
		out, err = repos.Journals.FindByID(ctx, orgID, id)
		return err
	})
	return out, err
}

func (r journalReader) FindBySourceTransaction(ctx context.Context, orgID, txID uuid.UUID) ([]posting.JournalEntry, error) {
	var out []posting.JournalEntry
	err := r.ledger.RunInTx(ctx, func(ctx context.Context, repos posting.TxRepositories) error {
		var err error
		out, err = repos.Journals.FindBySourceTransaction(ctx, orgID, txID)
		return err
	})
	return out, err
}
