package posting

import (
	"fmt"
	"regexp"
	"strings"
)

// SmartCode is a hierarchical, versioned classification string such as
// HERA.SALON.FINANCE.TXN.SALE.SERVICE.V1
type SmartCode string

var smartCodePattern = regexp.MustCompile(`(?i)^HERA(\.[A-Z0-9_]+){2,}\.[Vv][0-9]+$`)

// Side of a journal line
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// IsValid checks if the side is valid
func (s Side) IsValid() bool {
	return s == SideDebit || s == SideCredit
}

// ParseSmartCode validates the shape of a smart code
func ParseSmartCode(raw string) (SmartCode, error) {
	code := strings.TrimSpace(raw)
	if !smartCodePattern.MatchString(code) {
		return "", fmt.Errorf("smart code %q must look like HERA.<DOMAIN>.<MODULE>...V<n>", raw)
	}
	return SmartCode(code), nil
}

// Segments returns the dot separated parts of the code
func (s SmartCode) Segments() []string {
	if s == "" {
		return nil
	}
	return strings.Split(string(s), ".")
}

// Domain returns the second segment, e.g. SALON for HERA.SALON.FINANCE.TXN.SALE.V1
func (s SmartCode) Domain() string {
	segs := s.Segments()
	if len(segs) < 2 {
		return "FINANCE"
	}
	return segs[1]
}

// HasSegment reports whether any non-version segment equals name (case-insensitive)
func (s SmartCode) HasSegment(name string) bool {
	segs := s.Segments()
	for i, seg := range segs {
		if i == len(segs)-1 {
			break
		}
		if strings.EqualFold(seg, name) {
			return true
		}
	}
	return false
}

// Matches reports whether the code matches a glob-like pattern where '*'
// stands for one whole segment, e.g. HERA.*.FINANCE.TXN.QUOTE.*
// A pattern without '*' or '.' is matched as a single segment name.
func (s SmartCode) Matches(pattern string) bool {
	if !strings.Contains(pattern, ".") {
		return s.HasSegment(pattern)
	}
	want := strings.Split(pattern, ".")
	got := s.Segments()
	if len(want) > len(got) {
		return false
	}
	for i, w := range want {
		if w == "*" {
			continue
		}
		if !strings.EqualFold(w, got[i]) {
			return false
		}
	}
	return true
}

func (s SmartCode) String() string {
	return string(s)
}

// LineSmartCode derives the provenance code stamped on every generated line
func LineSmartCode(domain string, side Side) SmartCode {
	if domain == "" {
		domain = "FINANCE"
	}
	return SmartCode(fmt.Sprintf("HERA.%s.GL.LINE.JE.%s.v1", strings.ToUpper(domain), side))
}

// JournalSmartCode derives the header code for a journal built from an event
func JournalSmartCode(domain string, method Method) SmartCode {
	if domain == "" {
		domain = "FINANCE"
	}
	return SmartCode(fmt.Sprintf("HERA.%s.GL.JE.%s.v1", strings.ToUpper(domain), strings.ToUpper(string(method))))
}
