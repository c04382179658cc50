package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTransactionType(t *testing.T) {
	tests := []struct {
		raw  string
		want TransactionType
	}{
		{"sale", TypeSale},
		{"SALE", TypeSale},
		{" payment ", TypePayment},
		{"TX.FINANCE.EXPENSE.V1", TypeExpense},
		{"TX.POS.EOD.V2", TypePOSEndOfDay},
		{"pos_eod", TypePOSEndOfDay},
		{"POS-END-OF-DAY", TypePOSEndOfDay},
		{"bank_charge", TypeBankFee},
		{"deposit", TypeBankDeposit},
		{"custom_widget", TransactionType("custom_widget")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTransactionType(tt.raw))
		})
	}
}

func TestChannel_IsValid(t *testing.T) {
	for _, c := range []Channel{ChannelMCP, ChannelPOS, ChannelBank, ChannelManual, ChannelImport} {
		assert.True(t, c.IsValid(), c)
	}
	assert.False(t, Channel("FAX").IsValid())
	assert.False(t, Channel("").IsValid())
}

func TestIngestSource_IsValid(t *testing.T) {
	assert.True(t, SourceBankFeed.IsValid())
	assert.False(t, IngestSource("carrier_pigeon").IsValid())
}

func TestFinanceEvent_BaseAmount(t *testing.T) {
	e := &FinanceEvent{
		TotalAmount:         decimal.RequireFromString("100"),
		TransactionCurrency: valueobject.USD,
		BaseCurrency:        valueobject.AED,
		ExchangeRate:        decimal.RequireFromString("3.6725"),
	}
	assert.Equal(t, "367.25", e.BaseAmount().String())

	e.ExchangeRate = decimal.Zero
	assert.Equal(t, "100", e.BaseAmount().String(), "non-positive rate falls back to 1")
}

func TestFinanceEvent_BusinessDate(t *testing.T) {
	loc := time.FixedZone("GST", 4*3600)
	e := &FinanceEvent{TransactionDate: time.Date(2024, 12, 1, 2, 30, 0, 0, loc)}
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), e.BusinessDate())
}

func TestPostingPeriodOf_UsesSubmittedOffset(t *testing.T) {
	gst := time.FixedZone("GST", 4*3600)
	early := time.Date(2024, 12, 1, 2, 0, 0, 0, gst)

	assert.Equal(t, "2024-12", PostingPeriodOf(early))
	assert.Equal(t, "2024-11", PostingPeriodOf(early.UTC()), "the same instant read in UTC is still November")

	key := NewBatchKey(uuid.New(), TypeSale, early)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), key.Date)

	j, err := NewJournalEntry(uuid.New(), early, valueobject.AED, MethodRule)
	require.NoError(t, err)
	j.AddDebit(AccountReceivable, decimal.NewFromInt(10), "sale")
	j.AddCredit(AccountSalesRevenue, decimal.NewFromInt(10), "sale")
	require.NoError(t, j.MarkPosted(early))
	assert.Equal(t, "2024-12", j.PostingPeriod)
}

func TestTransactionType_IsReserved(t *testing.T) {
	assert.True(t, TypeAuditLog.IsReserved())
	assert.True(t, NormalizeTransactionType("AUDIT_LOG").IsReserved())
	assert.True(t, NormalizeTransactionType(" audit_log ").IsReserved())
	assert.False(t, TypeSale.IsReserved())
}

func TestPOSTotals_IsZero(t *testing.T) {
	assert.True(t, POSTotals{}.IsZero())
	assert.False(t, POSTotals{Tips: decimal.NewFromInt(5)}.IsZero())
}
