package posting

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulebook_Mappings(t *testing.T) {
	book := DefaultRulebook()
	org := uuid.New()

	tests := []struct {
		txType TransactionType
		debit  string
		credit string
	}{
		{TypeSale, "1200", "4000"},
		{TypePayment, "2000", "1000"},
		{TypeReceipt, "1000", "1200"},
		{TypePurchase, "1300", "2000"},
		{TypeExpense, "6000", "1010"},
	}
	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			m, ok := book.Lookup(org, tt.txType)
			require.True(t, ok)
			assert.Equal(t, tt.debit, m.Debit.Code)
			assert.Equal(t, tt.credit, m.Credit.Code)
		})
	}

	for txType := range AlwaysRelevantTypes {
		assert.True(t, book.Recognizes(org, txType), "always relevant type %s must be buildable", txType)
	}
	assert.True(t, book.Recognizes(org, TypePOSEndOfDay))
	assert.False(t, book.Recognizes(org, TransactionType("crypto_swap")))
}

func TestRulebook_OrganizationOverride(t *testing.T) {
	book := DefaultRulebook()
	org := uuid.New()
	other := uuid.New()
	book.Overrides[org] = map[TransactionType]AccountMapping{
		TypeSale: {TransactionType: TypeSale, Debit: AccountCash, Credit: AccountSalesRevenue},
	}

	m, ok := book.Lookup(org, TypeSale)
	require.True(t, ok)
	assert.Equal(t, "1000", m.Debit.Code)

	m, ok = book.Lookup(other, TypeSale)
	require.True(t, ok)
	assert.Equal(t, "1200", m.Debit.Code)

	m, ok = book.Lookup(org, TypePurchase)
	require.True(t, ok, "types without override fall back to the global table")
	assert.Equal(t, "1300", m.Debit.Code)
}

func TestRulebook_NilSafe(t *testing.T) {
	var book *Rulebook
	_, ok := book.Lookup(uuid.New(), TypeSale)
	assert.False(t, ok)
	assert.False(t, book.Recognizes(uuid.New(), TypeSale))
}

func TestRulebook_ChartOfAccounts(t *testing.T) {
	chart := DefaultRulebook().ChartOfAccounts()
	require.NotEmpty(t, chart)
	for i := 1; i < len(chart); i++ {
		assert.Less(t, chart[i-1].Code, chart[i].Code)
	}
}

func TestPolicy(t *testing.T) {
	org := uuid.New()
	p := DefaultPolicy()
	p.OrganizationThresholds = map[uuid.UUID]Thresholds{
		org: {Batching: decimal.NewFromInt(250)},
	}

	th := p.ThresholdsFor(org)
	assert.True(t, th.Batching.Equal(decimal.NewFromInt(250)))
	assert.True(t, th.Immediate.Equal(decimal.NewFromInt(1000)), "unset override keeps global value")

	th = p.ThresholdsFor(uuid.New())
	assert.True(t, th.Batching.Equal(decimal.NewFromInt(500)))

	assert.True(t, p.IsNeverRelevant("HERA.SALON.FINANCE.TXN.QUOTE.V1"))
	assert.False(t, p.IsNeverRelevant("HERA.SALON.FINANCE.TXN.SALE.V1"))
	assert.True(t, p.IsCritical("HERA.SALON.FINANCE.TXN.SALE.CRITICAL.V1"))
	assert.Equal(t, 0.5, p.ConfidenceFloor)
}
