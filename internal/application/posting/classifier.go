package posting

import (
	"context"

	"github.com/hera/autojournal/internal/domain/posting"
)

// Classifier decides whether an event has GL impact. Rules are evaluated
// in order and the first match wins; only unrecognized types reach the
// escalation path.
type Classifier struct {
	policy    posting.Policy
	rulebooks posting.RulebookProvider
	escalator *Escalator
}

// NewClassifier creates a classifier
func NewClassifier(policy posting.Policy, rulebooks posting.RulebookProvider, escalator *Escalator) *Classifier {
	return &Classifier{policy: policy, rulebooks: rulebooks, escalator: escalator}
}

// Classify returns the relevance decision for an event
func (c *Classifier) Classify(ctx context.Context, event *posting.FinanceEvent) posting.ClassificationResult {
	if result, ok := c.classifyByRule(event); ok {
		return result
	}
	return c.Escalate(ctx, event)
}

// classifyByRule applies the deterministic steps. ok is false when the
// event must be escalated.
func (c *Classifier) classifyByRule(event *posting.FinanceEvent) (posting.ClassificationResult, bool) {
	if posting.AlwaysRelevantTypes[event.TransactionType] {
		return posting.RuleMatch(true, posting.ReasonAlwaysRelevant), true
	}
	if event.TotalAmount.IsZero() {
		return posting.RuleMatch(false, posting.ReasonZeroAmount), true
	}
	if c.policy.IsNeverRelevant(event.SmartCode) {
		return posting.RuleMatch(false, posting.ReasonNeverRelevantCode), true
	}
	if c.rulebooks.Current().Recognizes(event.OrganizationID, event.TransactionType) {
		return posting.RuleMatch(true, posting.ReasonRuleTable), true
	}
	return posting.ClassificationResult{}, false
}

// Escalate consults the external service. Its confidence is used as
// returned; anything below the floor or any failure is not relevant.
func (c *Classifier) Escalate(ctx context.Context, event *posting.FinanceEvent) posting.ClassificationResult {
	if c.escalator == nil {
		return posting.ClassificationResult{Method: posting.MethodAI, Reason: posting.ReasonEscalationFailed}
	}
	proposal, err := c.escalator.Propose(ctx, event)
	if err != nil {
		return posting.ClassificationResult{
			IsRelevant: false,
			Confidence: 0,
			Method:     posting.MethodAI,
			Reason:     posting.ReasonEscalationFailed,
		}
	}
	if proposal.Confidence < c.escalator.ConfidenceFloor() {
		return posting.ClassificationResult{
			IsRelevant: false,
			Confidence: proposal.Confidence,
			Method:     posting.MethodAI,
			Reason:     posting.ReasonRejectedLowConfidence,
			Proposal:   proposal,
		}
	}
	return posting.ClassificationResult{
		IsRelevant: true,
		Confidence: proposal.Confidence,
		Method:     posting.MethodAI,
		Reason:     posting.ReasonEscalation,
		Proposal:   proposal,
	}
}
