package posting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSmartCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"full code", "HERA.SALON.FINANCE.TXN.SALE.SERVICE.V1", false},
		{"short code", "HERA.REST.POS.V2", false},
		{"lowercase version", "HERA.SALON.GL.LINE.JE.DEBIT.v1", false},
		{"missing prefix", "SALON.FINANCE.TXN.SALE.V1", true},
		{"missing version", "HERA.SALON.FINANCE.TXN.SALE", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSmartCode(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSmartCode_Domain(t *testing.T) {
	assert.Equal(t, "SALON", SmartCode("HERA.SALON.FINANCE.TXN.SALE.V1").Domain())
	assert.Equal(t, "FINANCE", SmartCode("").Domain())
}

func TestSmartCode_HasSegment(t *testing.T) {
	code := SmartCode("HERA.SALON.FINANCE.TXN.QUOTE.V1")
	assert.True(t, code.HasSegment("QUOTE"))
	assert.True(t, code.HasSegment("quote"))
	assert.False(t, code.HasSegment("V1"), "version segment is ignored")
	assert.False(t, code.HasSegment("DRAFT"))
}

func TestSmartCode_Matches(t *testing.T) {
	code := SmartCode("HERA.REST.FINANCE.TXN.SALE.CRITICAL.V1")
	assert.True(t, code.Matches("CRITICAL"))
	assert.True(t, code.Matches("HERA.*.FINANCE.TXN.SALE"))
	assert.True(t, code.Matches("HERA.REST.*.TXN"))
	assert.False(t, code.Matches("HERA.SALON.*"))
	assert.False(t, code.Matches("HERA.REST.FINANCE.TXN.SALE.CRITICAL.V1.EXTRA"))
}

func TestLineSmartCode(t *testing.T) {
	debit := LineSmartCode("salon", SideDebit)
	credit := LineSmartCode("SALON", SideCredit)
	assert.Equal(t, SmartCode("HERA.SALON.GL.LINE.JE.DEBIT.v1"), debit)
	assert.Equal(t, SmartCode("HERA.SALON.GL.LINE.JE.CREDIT.v1"), credit)

	_, err := ParseSmartCode(string(debit))
	require.NoError(t, err, "derived line codes are themselves valid smart codes")
}
