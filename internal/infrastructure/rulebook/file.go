// Package rulebook loads the account mapping table from YAML and keeps it
// current while the file changes.
package rulebook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRulebook is returned for files that parse but cannot be used
var ErrInvalidRulebook = errors.New("invalid rulebook")

type accountDoc struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

func (a accountDoc) ref() posting.AccountRef {
	return posting.AccountRef{Code: strings.TrimSpace(a.Code), Name: strings.TrimSpace(a.Name)}
}

type mappingDoc struct {
	Debit       accountDoc `yaml:"debit"`
	Credit      accountDoc `yaml:"credit"`
	Description string     `yaml:"description"`
}

type posDoc struct {
	Cash         *accountDoc `yaml:"cash"`
	CardClearing *accountDoc `yaml:"card_clearing"`
	CardFees     *accountDoc `yaml:"card_fees"`
	SalesRevenue *accountDoc `yaml:"sales_revenue"`
	VATPayable   *accountDoc `yaml:"vat_payable"`
	TipsPayable  *accountDoc `yaml:"tips_payable"`
}

// fileDoc is the on-disk layout of a rulebook
type fileDoc struct {
	Version string `yaml:"version"`
	// InheritDefaults starts from the built-in table so a file only needs
	// the mappings it changes
	InheritDefaults bool                             `yaml:"inherit_defaults"`
	Mappings        map[string]mappingDoc            `yaml:"mappings"`
	POS             posDoc                           `yaml:"pos"`
	Organizations   map[string]map[string]mappingDoc `yaml:"organizations"`
}

// Parse decodes and validates a YAML rulebook
func Parse(data []byte) (*posting.Rulebook, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidRulebook)
	}

	book := &posting.Rulebook{
		Version:   strings.TrimSpace(doc.Version),
		Mappings:  make(map[posting.TransactionType]posting.AccountMapping),
		Overrides: make(map[uuid.UUID]map[posting.TransactionType]posting.AccountMapping),
	}
	if doc.InheritDefaults {
		defaults := posting.DefaultRulebook()
		for t, m := range defaults.Mappings {
			book.Mappings[t] = m
		}
		book.POS = defaults.POS
	}

	for rawType, m := range doc.Mappings {
		mapping, err := toMapping(rawType, m)
		if err != nil {
			return nil, err
		}
		book.Mappings[mapping.TransactionType] = mapping
	}

	applyPOS(&book.POS, doc.POS)

	for rawOrg, byType := range doc.Organizations {
		orgID, err := uuid.Parse(rawOrg)
		if err != nil {
			return nil, fmt.Errorf("%w: organization %q is not a uuid", ErrInvalidRulebook, rawOrg)
		}
		overrides := make(map[posting.TransactionType]posting.AccountMapping, len(byType))
		for rawType, m := range byType {
			mapping, err := toMapping(rawType, m)
			if err != nil {
				return nil, fmt.Errorf("organization %s: %w", orgID, err)
			}
			overrides[mapping.TransactionType] = mapping
		}
		book.Overrides[orgID] = overrides
	}

	if len(book.Mappings) == 0 {
		return nil, fmt.Errorf("%w: no mappings", ErrInvalidRulebook)
	}
	return book, nil
}

func toMapping(rawType string, m mappingDoc) (posting.AccountMapping, error) {
	t := posting.NormalizeTransactionType(rawType)
	if t == "" || t.IsReserved() {
		return posting.AccountMapping{}, fmt.Errorf("%w: transaction type %q cannot be mapped", ErrInvalidRulebook, rawType)
	}
	if t == posting.TypePOSEndOfDay {
		return posting.AccountMapping{}, fmt.Errorf("%w: %s is configured under pos, not mappings", ErrInvalidRulebook, t)
	}
	debit, credit := m.Debit.ref(), m.Credit.ref()
	if debit.Code == "" || credit.Code == "" {
		return posting.AccountMapping{}, fmt.Errorf("%w: %s needs both a debit and a credit account", ErrInvalidRulebook, t)
	}
	if debit.Code == credit.Code {
		return posting.AccountMapping{}, fmt.Errorf("%w: %s debits and credits the same account %s", ErrInvalidRulebook, t, debit.Code)
	}
	desc := strings.TrimSpace(m.Description)
	if desc == "" {
		desc = string(t)
	}
	return posting.AccountMapping{TransactionType: t, Debit: debit, Credit: credit, Description: desc}, nil
}

func applyPOS(dst *posting.POSAccounts, doc posDoc) {
	set := func(target *posting.AccountRef, a *accountDoc) {
		if a != nil && strings.TrimSpace(a.Code) != "" {
			*target = a.ref()
		}
	}
	set(&dst.Cash, doc.Cash)
	set(&dst.CardClearing, doc.CardClearing)
	set(&dst.CardFees, doc.CardFees)
	set(&dst.SalesRevenue, doc.SalesRevenue)
	set(&dst.VATPayable, doc.VATPayable)
	set(&dst.TipsPayable, doc.TipsPayable)
}
