package posting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Thresholds decide between immediate posting and batching
type Thresholds struct {
	// Immediate: amounts strictly above this post immediately
	Immediate decimal.Decimal
	// Batching: an open group flushes once its running total reaches this
	Batching decimal.Decimal
}

// DefaultThresholds returns the global defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		Immediate: decimal.NewFromInt(1000),
		Batching:  decimal.NewFromInt(500),
	}
}

// AlwaysRelevantTypes always carry GL impact
var AlwaysRelevantTypes = map[TransactionType]bool{
	TypePayment:      true,
	TypeReceipt:      true,
	TypeBankFee:      true,
	TypeBankTransfer: true,
	TypeBankDeposit:  true,
}

// AlwaysImmediateTypes move cash and are never deferred
var AlwaysImmediateTypes = map[TransactionType]bool{
	TypeReceipt: true,
	TypePayment: true,
}

// DefaultNeverRelevantPatterns mark smart codes without GL impact
var DefaultNeverRelevantPatterns = []string{"QUOTE", "DRAFT", "ESTIMATE", "RESERVATION"}

// DefaultCriticalPatterns opt a smart code into immediate posting
var DefaultCriticalPatterns = []string{"CRITICAL"}

// Policy bundles the tunables of classification and batching
type Policy struct {
	Thresholds            Thresholds
	ConfidenceFloor       float64
	NeverRelevantPatterns []string
	CriticalPatterns      []string
	// OrganizationThresholds override the global thresholds per organization
	OrganizationThresholds map[uuid.UUID]Thresholds
}

// DefaultPolicy returns the global defaults
func DefaultPolicy() Policy {
	return Policy{
		Thresholds:            DefaultThresholds(),
		ConfidenceFloor:       0.5,
		NeverRelevantPatterns: DefaultNeverRelevantPatterns,
		CriticalPatterns:      DefaultCriticalPatterns,
	}
}

// ThresholdsFor returns the organization's thresholds, falling back to the
// global ones for any unset value
func (p Policy) ThresholdsFor(orgID uuid.UUID) Thresholds {
	t := p.Thresholds
	if o, ok := p.OrganizationThresholds[orgID]; ok {
		if o.Immediate.IsPositive() {
			t.Immediate = o.Immediate
		}
		if o.Batching.IsPositive() {
			t.Batching = o.Batching
		}
	}
	return t
}

// IsNeverRelevant reports whether the smart code matches a no-GL-impact pattern
func (p Policy) IsNeverRelevant(code SmartCode) bool {
	return matchesAny(code, p.NeverRelevantPatterns)
}

// IsCritical reports whether the smart code opted into immediate posting
func (p Policy) IsCritical(code SmartCode) bool {
	return matchesAny(code, p.CriticalPatterns)
}

func matchesAny(code SmartCode, patterns []string) bool {
	for _, pattern := range patterns {
		if code.Matches(pattern) {
			return true
		}
	}
	return false
}
