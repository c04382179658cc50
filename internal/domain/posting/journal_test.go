package posting

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *JournalEntry {
	j, err := NewJournalEntry(uuid.New(), time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC), valueobject.AED, MethodRule)
	require.NoError(t, err)
	j.SourceSmartCode = "HERA.SALON.FINANCE.TXN.EXPENSE.V1"
	return j
}

func TestNewJournalEntry(t *testing.T) {
	t.Run("derives posting period", func(t *testing.T) {
		j := newTestJournal(t)
		assert.Equal(t, "2024-12", j.PostingPeriod)
		assert.Equal(t, JournalStatusDraft, j.Status)
		assert.Equal(t, 1, j.Version)
	})

	t.Run("rejects empty organization", func(t *testing.T) {
		_, err := NewJournalEntry(uuid.Nil, time.Now(), valueobject.AED, MethodRule)
		assert.Error(t, err)
	})

	t.Run("rejects unknown currency", func(t *testing.T) {
		_, err := NewJournalEntry(uuid.New(), time.Now(), valueobject.Currency("XXX"), MethodRule)
		assert.Error(t, err)
	})
}

func TestJournalEntry_AddLine(t *testing.T) {
	j := newTestJournal(t)
	j.AddDebit(AccountOperatingExpenses, decimal.NewFromInt(15000), "Office rent")
	j.AddCredit(AccountBank, decimal.NewFromInt(15000), "Office rent")
	j.AddCredit(AccountTipsPayable, decimal.Zero, "skipped")

	require.Len(t, j.Lines, 2)
	assert.Equal(t, 1, j.Lines[0].LineNumber)
	assert.Equal(t, SideDebit, j.Lines[0].Side())
	assert.Equal(t, SmartCode("HERA.SALON.GL.LINE.JE.DEBIT.v1"), j.Lines[0].SmartCode)
	assert.Equal(t, SideCredit, j.Lines[1].Side())
	assert.Equal(t, SmartCode("HERA.SALON.GL.LINE.JE.CREDIT.v1"), j.Lines[1].SmartCode)
	assert.True(t, j.TotalDebit().Equal(decimal.NewFromInt(15000)))
}

func TestJournalEntry_CheckBalance(t *testing.T) {
	t.Run("balanced", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.RequireFromString("512.75"), "")
		j.AddCredit(AccountSalesRevenue, decimal.RequireFromString("512.75"), "")
		assert.NoError(t, j.CheckBalance())
	})

	t.Run("within one minor unit", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.RequireFromString("100.00"), "")
		j.AddCredit(AccountSalesRevenue, decimal.RequireFromString("99.99"), "")
		assert.NoError(t, j.CheckBalance())
	})

	t.Run("off by more than epsilon", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.RequireFromString("100.00"), "")
		j.AddCredit(AccountSalesRevenue, decimal.RequireFromString("99.98"), "")

		err := j.CheckBalance()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnbalancedJournal))

		var balanceErr *BalanceError
		require.True(t, errors.As(err, &balanceErr))
		assert.Len(t, balanceErr.Lines, 2, "attempted lines are kept for diagnosis")
		assert.Contains(t, err.Error(), "AED debits 100.00 credits 99.98")
	})

	t.Run("balance is checked per currency", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.NewFromInt(100), "")
		j.AddCredit(AccountSalesRevenue, decimal.NewFromInt(100), "")
		j.Lines = append(j.Lines, JournalLine{
			LineNumber: 3, AccountCode: "1000", DebitAmount: decimal.NewFromInt(10), Currency: valueobject.USD,
		})
		err := j.CheckBalance()
		require.Error(t, err)
		totals := j.TotalsByCurrency()
		require.Len(t, totals, 2)
		assert.Equal(t, valueobject.AED, totals[0].Currency)
		assert.True(t, totals[0].Balanced())
		assert.False(t, totals[1].Balanced())
	})
}

func TestJournalLine_Validate(t *testing.T) {
	tests := []struct {
		name    string
		line    JournalLine
		wantErr bool
	}{
		{"debit only", JournalLine{AccountCode: "1000", DebitAmount: decimal.NewFromInt(1), Currency: valueobject.AED}, false},
		{"credit only", JournalLine{AccountCode: "1000", CreditAmount: decimal.NewFromInt(1), Currency: valueobject.AED}, false},
		{"both sides", JournalLine{AccountCode: "1000", DebitAmount: decimal.NewFromInt(1), CreditAmount: decimal.NewFromInt(1), Currency: valueobject.AED}, true},
		{"neither side", JournalLine{AccountCode: "1000", Currency: valueobject.AED}, true},
		{"negative", JournalLine{AccountCode: "1000", DebitAmount: decimal.NewFromInt(-1), Currency: valueobject.AED}, true},
		{"no account", JournalLine{DebitAmount: decimal.NewFromInt(1), Currency: valueobject.AED}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.line.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJournalEntry_MarkPosted(t *testing.T) {
	t.Run("posts balanced journal and raises event", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountOperatingExpenses, decimal.NewFromInt(15000), "")
		j.AddCredit(AccountBank, decimal.NewFromInt(15000), "")

		now := time.Now()
		require.NoError(t, j.MarkPosted(now))
		assert.Equal(t, JournalStatusPosted, j.Status)
		assert.Equal(t, "2024-12", j.PostingPeriod)
		require.Len(t, j.GetDomainEvents(), 1)
		evt, ok := j.GetDomainEvents()[0].(*JournalPostedEvent)
		require.True(t, ok)
		assert.Equal(t, EventTypeJournalPosted, evt.EventType())
		assert.Equal(t, 2, evt.LineCount)
	})

	t.Run("rejects single line journal", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.NewFromInt(1), "")
		assert.Error(t, j.MarkPosted(time.Now()))
		assert.Equal(t, JournalStatusDraft, j.Status)
	})

	t.Run("cannot post twice", func(t *testing.T) {
		j := newTestJournal(t)
		j.AddDebit(AccountCash, decimal.NewFromInt(1), "")
		j.AddCredit(AccountSalesRevenue, decimal.NewFromInt(1), "")
		require.NoError(t, j.MarkPosted(time.Now()))
		assert.Error(t, j.MarkPosted(time.Now()))
	})
}

func TestPostingPeriodOf(t *testing.T) {
	assert.Equal(t, "2024-01", PostingPeriodOf(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-02", PostingPeriodOf(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
}
