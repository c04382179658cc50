package posting

import (
	"errors"
	"fmt"

	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
)

// Error codes surfaced to callers
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeDuplicateRequest = "DUPLICATE_REQUEST"
	CodeProcessingFailed = "PROCESSING_FAILED"
	CodePostingFailed    = "POSTING_FAILED"
	CodePostingTimeout   = "POSTING_TIMEOUT"
)

// Pipeline errors
var (
	ErrAccessDenied     = shared.ErrAccessDenied
	ErrDuplicateRequest = shared.NewDomainError(CodeDuplicateRequest, "A request with this idempotency key or transaction id was already processed")

	ErrEscalationUnavailable = errors.New("escalation service is not configured")
	ErrEscalationTimeout     = errors.New("escalation service timed out")
	ErrInvalidProposal       = errors.New("escalation proposal is malformed")
)

// FieldError is one field-level validation problem
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field problem found in a request
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(e.Errors))
}

// Is lets errors.Is match any ValidationError against ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrValidation is the sentinel matched by every ValidationError
var ErrValidation = shared.NewDomainError(CodeValidationFailed, "Request validation failed")

// PostingError is returned when a journal cannot be written to the ledger.
// Nothing is persisted when it is returned.
type PostingError struct {
	Code    string
	Message string
	Journal *posting.JournalEntry
	Err     error
}

func (e *PostingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

// Transient reports whether the caller may retry the same event
func (e *PostingError) Transient() bool {
	return e.Code == CodePostingFailed || e.Code == CodePostingTimeout
}

// AttemptedLines returns the line set the error refers to
func (e *PostingError) AttemptedLines() []posting.JournalLine {
	var balanceErr *posting.BalanceError
	if errors.As(e.Err, &balanceErr) {
		return balanceErr.Lines
	}
	if e.Journal != nil {
		return e.Journal.Lines
	}
	return nil
}
