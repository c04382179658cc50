package rulebook

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const minimalBook = `
version: "v1"
mappings:
  sale:
    debit: { code: "1200", name: "Accounts Receivable" }
    credit: { code: "4000", name: "Sales Revenue" }
`

func writeBook(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestParse_ExampleFile(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "configs", "rulebook.example.yaml"))
	require.NoError(t, err)

	book, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "2024.12-r1", book.Version)
	// inherited from the built-in table
	payroll, ok := book.Lookup(uuid.Nil, posting.TypePayroll)
	require.True(t, ok)
	assert.Equal(t, "6200", payroll.Debit.Code)

	commission, ok := book.Lookup(uuid.Nil, "delivery_commission")
	require.True(t, ok)
	assert.Equal(t, "6120", commission.Debit.Code)
	assert.Equal(t, "1210", commission.Credit.Code)

	org := uuid.MustParse("6f1c1c4e-2a7b-4c55-9a51-0d4b8a3e9f10")
	expense, ok := book.Lookup(org, posting.TypeExpense)
	require.True(t, ok)
	assert.Equal(t, "6050", expense.Debit.Code)

	other, ok := book.Lookup(uuid.New(), posting.TypeExpense)
	require.True(t, ok)
	assert.Equal(t, "6000", other.Debit.Code)

	assert.True(t, book.Recognizes(uuid.Nil, posting.TypePOSEndOfDay))
}

func TestParse_NormalizesTypes(t *testing.T) {
	book, err := Parse([]byte(`
version: "v2"
mappings:
  TX.FINANCE.BANK_CHARGE.V1:
    debit: { code: "6100" }
    credit: { code: "1010" }
`))
	require.NoError(t, err)

	m, ok := book.Mappings[posting.TypeBankFee]
	require.True(t, ok)
	assert.Equal(t, "bank_fee", m.Description)
	assert.False(t, book.Recognizes(uuid.Nil, posting.TypePOSEndOfDay), "no POS accounts without defaults")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "no version", doc: `mappings: {sale: {debit: {code: "1"}, credit: {code: "2"}}}`},
		{name: "no mappings", doc: `version: "v1"`},
		{name: "missing credit", doc: `{version: "v1", mappings: {sale: {debit: {code: "1200"}}}}`},
		{name: "same account", doc: `{version: "v1", mappings: {sale: {debit: {code: "1200"}, credit: {code: "1200"}}}}`},
		{name: "pos under mappings", doc: `{version: "v1", mappings: {pos_eod: {debit: {code: "1000"}, credit: {code: "4000"}}}}`},
		{name: "audit type", doc: `{version: "v1", mappings: {AUDIT_LOG: {debit: {code: "1000"}, credit: {code: "4000"}}}}`},
		{name: "audit type any case", doc: `{version: "v1", mappings: {audit_log: {debit: {code: "1000"}, credit: {code: "4000"}}}}`},
		{name: "audit type per organization", doc: `{version: "v1", inherit_defaults: true, organizations: {"6f1c1c4e-2a7b-4c55-9a51-0d4b8a3e9f10": {AUDIT_LOG: {debit: {code: "1000"}, credit: {code: "4000"}}}}}`},
		{name: "bad organization", doc: `{version: "v1", inherit_defaults: true, organizations: {acme: {}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRulebook)
		})
	}

	_, err := Parse([]byte("version: [unclosed"))
	assert.ErrorContains(t, err, "parse rulebook")
}

func TestLoader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeBook(t, path, minimalBook)

	loader, err := NewLoader(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "v1", loader.Current().Version)

	var seen atomic.Value
	loader.OnChange(func(b *posting.Rulebook) { seen.Store(b.Version) })

	writeBook(t, path, `
version: "v2"
inherit_defaults: true
`)
	book, err := loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", book.Version)
	assert.Equal(t, "v2", loader.Current().Version)
	assert.Equal(t, "v2", seen.Load())

	writeBook(t, path, "version: ''")
	_, err = loader.Reload()
	assert.Error(t, err)
	assert.Equal(t, "v2", loader.Current().Version, "a broken file keeps the previous rulebook")
}

func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeBook(t, path, minimalBook)

	loader, err := NewLoader(path, zap.NewNop())
	require.NoError(t, err)

	stop, err := loader.Watch()
	require.NoError(t, err)
	defer stop()

	writeBook(t, path, `
version: "v3"
mappings:
  refund:
    debit: { code: "4100" }
    credit: { code: "1000" }
`)
	assert.Eventually(t, func() bool {
		return loader.Current().Version == "v3"
	}, 5*time.Second, 20*time.Millisecond)

	stop()
	stop()
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorContains(t, err, "read rulebook")
}

func TestNewProvider(t *testing.T) {
	provider, stop, err := NewProvider(config.RulebookConfig{}, zap.NewNop())
	require.NoError(t, err)
	stop()
	assert.Equal(t, posting.DefaultRulebookVersion, provider.Current().Version)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeBook(t, path, minimalBook)
	provider, stop, err = NewProvider(config.RulebookConfig{Path: path, Watch: true}, zap.NewNop())
	require.NoError(t, err)
	defer stop()
	assert.Equal(t, "v1", provider.Current().Version)
	_, ok := provider.(*Loader)
	assert.True(t, ok)
}
