package posting

import "github.com/shopspring/decimal"

// Method records how a classification or journal was produced
type Method string

const (
	MethodRule  Method = "rule"
	MethodAI    Method = "ai"
	MethodBatch Method = "batch"
)

// Classification reasons. These end up in audit details.
const (
	ReasonAlwaysRelevant        = "always_relevant_type"
	ReasonZeroAmount            = "zero_amount"
	ReasonNeverRelevantCode     = "never_relevant_smart_code"
	ReasonRuleTable             = "rule_table"
	ReasonEscalation            = "escalation"
	ReasonRejectedLowConfidence = "rejected_low_confidence"
	ReasonEscalationFailed      = "escalation_failed"
)

// ClassificationResult is the ephemeral outcome of relevance classification
type ClassificationResult struct {
	IsRelevant bool
	Confidence float64
	Method     Method
	Reason     string

	// Proposal is set when the result came from the escalation path and is
	// reused by the builder so the external service is called only once
	Proposal *JournalProposal
}

// RuleMatch returns a deterministic, fully confident rule result
func RuleMatch(relevant bool, reason string) ClassificationResult {
	return ClassificationResult{
		IsRelevant: relevant,
		Confidence: 1.0,
		Method:     MethodRule,
		Reason:     reason,
	}
}

// ProposalLine is one line of an externally proposed journal
type ProposalLine struct {
	AccountCode string
	AccountName string
	Side        Side
	Amount      decimal.Decimal
	Description string
}

// JournalProposal is what the external reasoning service returns
type JournalProposal struct {
	Lines      []ProposalLine
	Confidence float64
	Model      string
	Rationale  string
}
