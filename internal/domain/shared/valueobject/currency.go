package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	AED Currency = "AED" // UAE Dirham (default)
	SAR Currency = "SAR" // Saudi Riyal
	QAR Currency = "QAR" // Qatari Riyal
	KWD Currency = "KWD" // Kuwaiti Dinar
	BHD Currency = "BHD" // Bahraini Dinar
	OMR Currency = "OMR" // Omani Rial
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	INR Currency = "INR" // Indian Rupee
	CNY Currency = "CNY" // Chinese Yuan
	JPY Currency = "JPY" // Japanese Yen
	HKD Currency = "HKD" // Hong Kong Dollar
	SGD Currency = "SGD" // Singapore Dollar
	AUD Currency = "AUD" // Australian Dollar
	CAD Currency = "CAD" // Canadian Dollar
	CHF Currency = "CHF" // Swiss Franc
)

// DefaultCurrency is used when an event carries no base currency
const DefaultCurrency = AED

// minorUnits is the number of decimal places of each supported currency
var minorUnits = map[Currency]int32{
	AED: 2, SAR: 2, QAR: 2, KWD: 3, BHD: 3, OMR: 3,
	USD: 2, EUR: 2, GBP: 2, INR: 2, CNY: 2, JPY: 0,
	HKD: 2, SGD: 2, AUD: 2, CAD: 2, CHF: 2,
}

// SupportedCurrencies returns all accepted currency codes
func SupportedCurrencies() []Currency {
	out := make([]Currency, 0, len(minorUnits))
	for c := range minorUnits {
		out = append(out, c)
	}
	return out
}

// ParseCurrency normalises and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency code %q", code)
	}
	return c, nil
}

// IsValid reports whether the currency is in the supported set
func (c Currency) IsValid() bool {
	_, ok := minorUnits[c]
	return ok
}

// MinorUnits returns the number of decimal places, 2 for unknown codes
func (c Currency) MinorUnits() int32 {
	if places, ok := minorUnits[c]; ok {
		return places
	}
	return 2
}

// Epsilon is one minor unit of the currency, e.g. 0.01 for AED and 1 for JPY.
// Debit and credit totals that differ by no more than this are balanced.
func (c Currency) Epsilon() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits())
}

// Round rounds an amount to the currency's minor unit using banker's rounding
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(c.MinorUnits())
}

func (c Currency) String() string {
	return string(c)
}
