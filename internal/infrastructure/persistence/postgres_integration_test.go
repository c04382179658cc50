package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/hera/autojournal/internal/infrastructure/migration"
	"github.com/hera/autojournal/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("hera_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestPostgres_ConcurrentBatchAppends(t *testing.T) {
	db := setupPostgres(t)
	runner := NewGormTransactionRunner(db)
	repo := NewGormBatchGroupRepository(db)
	orgID := uuid.New()

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runner.RunInTx(context.Background(), func(ctx context.Context, repos posting.TxRepositories) error {
				candidate, err := posting.NewBatchGroup(posting.NewBatchKey(orgID, posting.TypeSale, ledgerDay), valueobject.AED, "HERA.REST.FINANCE.TXN.SALE.V1")
				if err != nil {
					return err
				}
				group, err := repos.Batches.LockOrCreateOpen(ctx, candidate)
				if err != nil {
					return err
				}
				member, err := group.Append(saleEvent(orgID, "25.50"), time.Now().UTC())
				if err != nil {
					return err
				}
				return repos.Batches.AddMember(ctx, group, member)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var groups []posting.BatchGroup
	stale, err := repo.FindStaleOpen(context.Background(), ledgerDay.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	for _, g := range stale {
		if g.OrganizationID == orgID {
			groups = append(groups, g)
		}
	}
	require.Len(t, groups, 1, "concurrent appends share a single open group")
	assert.Len(t, groups[0].Members, workers)
	assert.True(t, groups[0].RunningTotal.Equal(decimal.RequireFromString("306")))
}

func TestPostgres_JournalSourceLookup(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormJournalRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	a, b := uuid.New(), uuid.New()
	journal := postedJournal(t, orgID, "900", a, b)
	require.NoError(t, repo.Create(ctx, journal))

	found, err := repo.FindBySourceTransaction(ctx, orgID, b)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, found[0].SourceTransactionIDs)

	audit := NewGormAuditRepository(db)
	record := posting.NewAuditRecord(orgID, journal.SourceSmartCode, posting.ResultPosted)
	record.JournalEntryID = &journal.ID
	record.WithDetails(map[string]any{"lines": 2})
	require.NoError(t, audit.Append(ctx, record))

	records, err := audit.Find(ctx, orgID, posting.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"lines":2}`, string(records[0].Details))
}
