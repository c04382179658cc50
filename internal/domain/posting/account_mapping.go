package posting

import (
	"sort"

	"github.com/google/uuid"
)

// AccountRef identifies a GL account
type AccountRef struct {
	Code string `yaml:"code" json:"account_code"`
	Name string `yaml:"name" json:"account_name"`
}

// AccountMapping is the canonical debit/credit pair for a transaction type
type AccountMapping struct {
	TransactionType TransactionType
	Debit           AccountRef
	Credit          AccountRef
	Description     string
}

// POSAccounts are the accounts used to expand a POS end-of-day summary
type POSAccounts struct {
	Cash         AccountRef
	CardClearing AccountRef
	CardFees     AccountRef
	SalesRevenue AccountRef
	VATPayable   AccountRef
	TipsPayable  AccountRef
}

// Rulebook is a versioned, immutable account-mapping table with optional
// per-organization overrides. A new Rulebook replaces the old one on reload.
type Rulebook struct {
	Version   string
	Mappings  map[TransactionType]AccountMapping
	POS       POSAccounts
	Overrides map[uuid.UUID]map[TransactionType]AccountMapping
}

// RulebookProvider hands out the current rulebook
type RulebookProvider interface {
	Current() *Rulebook
}

// StaticRulebook is a RulebookProvider that never changes
type StaticRulebook struct {
	Book *Rulebook
}

// Current returns the wrapped rulebook
func (s StaticRulebook) Current() *Rulebook {
	return s.Book
}

// Lookup returns the mapping for a type, preferring the organization override
func (r *Rulebook) Lookup(orgID uuid.UUID, t TransactionType) (AccountMapping, bool) {
	if r == nil {
		return AccountMapping{}, false
	}
	if byType, ok := r.Overrides[orgID]; ok {
		if m, ok := byType[t]; ok {
			return m, true
		}
	}
	m, ok := r.Mappings[t]
	return m, ok
}

// Recognizes reports whether the builder can produce a journal for the type
func (r *Rulebook) Recognizes(orgID uuid.UUID, t TransactionType) bool {
	if r == nil {
		return false
	}
	if t == TypePOSEndOfDay {
		return r.POS.Cash.Code != "" && r.POS.SalesRevenue.Code != ""
	}
	_, ok := r.Lookup(orgID, t)
	return ok
}

// ChartOfAccounts lists every account the rulebook references, sorted by code
func (r *Rulebook) ChartOfAccounts() []AccountRef {
	seen := make(map[string]AccountRef)
	add := func(a AccountRef) {
		if a.Code != "" {
			seen[a.Code] = a
		}
	}
	for _, m := range r.Mappings {
		add(m.Debit)
		add(m.Credit)
	}
	for _, a := range []AccountRef{r.POS.Cash, r.POS.CardClearing, r.POS.CardFees, r.POS.SalesRevenue, r.POS.VATPayable, r.POS.TipsPayable} {
		add(a)
	}
	out := make([]AccountRef, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Well-known accounts of the default chart
var (
	AccountCash              = AccountRef{Code: "1000", Name: "Cash"}
	AccountBank              = AccountRef{Code: "1010", Name: "Bank"}
	AccountCardClearing      = AccountRef{Code: "1020", Name: "Card Clearing"}
	AccountReceivable        = AccountRef{Code: "1200", Name: "Accounts Receivable"}
	AccountInventory         = AccountRef{Code: "1300", Name: "Inventory"}
	AccountPayable           = AccountRef{Code: "2000", Name: "Accounts Payable"}
	AccountVATPayable        = AccountRef{Code: "2100", Name: "VAT Payable"}
	AccountTipsPayable       = AccountRef{Code: "2150", Name: "Tips Payable"}
	AccountSalesRevenue      = AccountRef{Code: "4000", Name: "Sales Revenue"}
	AccountSalesReturns      = AccountRef{Code: "4100", Name: "Sales Returns"}
	AccountOperatingExpenses = AccountRef{Code: "6000", Name: "Operating Expenses"}
	AccountBankCharges       = AccountRef{Code: "6100", Name: "Bank Charges"}
	AccountCardFees          = AccountRef{Code: "6110", Name: "Card Processing Fees"}
	AccountSalaries          = AccountRef{Code: "6200", Name: "Salaries and Wages"}
)

// DefaultRulebookVersion identifies the built-in mapping table
const DefaultRulebookVersion = "builtin-2024.12"

// DefaultRulebook returns the built-in mapping table
func DefaultRulebook() *Rulebook {
	pair := func(t TransactionType, dr, cr AccountRef, desc string) AccountMapping {
		return AccountMapping{TransactionType: t, Debit: dr, Credit: cr, Description: desc}
	}
	mappings := []AccountMapping{
		pair(TypeSale, AccountReceivable, AccountSalesRevenue, "Sale"),
		pair(TypePayment, AccountPayable, AccountCash, "Payment to supplier"),
		pair(TypeReceipt, AccountCash, AccountReceivable, "Receipt from customer"),
		pair(TypePurchase, AccountInventory, AccountPayable, "Purchase"),
		pair(TypeExpense, AccountOperatingExpenses, AccountBank, "Expense"),
		pair(TypeBankFee, AccountBankCharges, AccountBank, "Bank fee"),
		pair(TypeBankTransfer, AccountBank, AccountCash, "Bank transfer"),
		pair(TypeBankDeposit, AccountBank, AccountCash, "Bank deposit"),
		pair(TypeRefund, AccountSalesReturns, AccountCash, "Customer refund"),
		pair(TypePayroll, AccountSalaries, AccountBank, "Payroll"),
	}
	book := &Rulebook{
		Version:  DefaultRulebookVersion,
		Mappings: make(map[TransactionType]AccountMapping, len(mappings)),
		POS: POSAccounts{
			Cash:         AccountCash,
			CardClearing: AccountCardClearing,
			CardFees:     AccountCardFees,
			SalesRevenue: AccountSalesRevenue,
			VATPayable:   AccountVATPayable,
			TipsPayable:  AccountTipsPayable,
		},
		Overrides: make(map[uuid.UUID]map[TransactionType]AccountMapping),
	}
	for _, m := range mappings {
		book.Mappings[m.TransactionType] = m
	}
	return book
}
