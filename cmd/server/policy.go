package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

// newPolicy converts the posting settings into the domain policy
func newPolicy(cfg config.PostingConfig) (posting.Policy, error) {
	policy := posting.DefaultPolicy()
	policy.Thresholds = posting.Thresholds{
		Immediate: cfg.ImmediateThreshold,
		Batching:  cfg.BatchingThreshold,
	}
	if cfg.ConfidenceFloor > 0 {
		policy.ConfidenceFloor = cfg.ConfidenceFloor
	}
	if len(cfg.NeverRelevantPatterns) > 0 {
		policy.NeverRelevantPatterns = cfg.NeverRelevantPatterns
	}
	if len(cfg.CriticalPatterns) > 0 {
		policy.CriticalPatterns = cfg.CriticalPatterns
	}

	if len(cfg.OrganizationThresholds) == 0 {
		return policy, nil
	}
	policy.OrganizationThresholds = make(map[uuid.UUID]posting.Thresholds, len(cfg.OrganizationThresholds))
	for rawOrg, o := range cfg.OrganizationThresholds {
		orgID, err := uuid.Parse(rawOrg)
		if err != nil {
			return posting.Policy{}, fmt.Errorf("posting.organization_thresholds: %q is not an organization id", rawOrg)
		}
		var t posting.Thresholds
		if o.Immediate != "" {
			if t.Immediate, err = decimal.NewFromString(o.Immediate); err != nil {
				return posting.Policy{}, fmt.Errorf("organization %s immediate threshold: %w", orgID, err)
			}
		}
		if o.Batching != "" {
			if t.Batching, err = decimal.NewFromString(o.Batching); err != nil {
				return posting.Policy{}, fmt.Errorf("organization %s batching threshold: %w", orgID, err)
			}
		}
		policy.OrganizationThresholds[orgID] = t
	}
	return policy, nil
}
