package queue

import (
	"time"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
)

// RetryPolicy computes backoff delays for one job kind
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the ai_processing defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Minute,
		MaxDelay:   30 * time.Minute,
	}
}

// Delay returns the backoff before retry number retryCount (1-based):
// min(BaseDelay * 2^(retryCount-1), MaxDelay). Delays are monotonically
// non-decreasing and saturate at MaxDelay.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	// Shifts past 62 bits would overflow; the ceiling applies long before
	if retryCount-1 >= 62 {
		return p.MaxDelay
	}

	delay := p.BaseDelay << uint(retryCount-1)
	if delay <= 0 || delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether another retry fits the budget
func (p RetryPolicy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// PolicySet resolves the retry policy for a job kind. Kinds without an
// explicit policy fall back to the ai_processing defaults.
type PolicySet struct {
	policies map[models.JobKind]RetryPolicy
	fallback RetryPolicy
}

// NewPolicySet builds a PolicySet from explicit per-kind policies
func NewPolicySet(policies map[models.JobKind]RetryPolicy) PolicySet {
	set := PolicySet{
		policies: make(map[models.JobKind]RetryPolicy, len(policies)),
		fallback: DefaultRetryPolicy(),
	}
	for kind, p := range policies {
		set.policies[kind] = p
	}
	if p, ok := policies[models.JobKindAIProcessing]; ok {
		set.fallback = p
	}
	return set
}

// PoliciesFromConfig parses the per-kind retry configuration
func PoliciesFromConfig(cfg *common.Config) PolicySet {
	policies := make(map[models.JobKind]RetryPolicy, len(cfg.Queue.Retry))
	for kind, rc := range cfg.Queue.Retry {
		policy := DefaultRetryPolicy()
		policy.MaxRetries = rc.MaxRetries
		if rc.BaseDelay != "" {
			if d, err := time.ParseDuration(rc.BaseDelay); err == nil {
				policy.BaseDelay = d
			}
		}
		if rc.MaxDelay != "" {
			if d, err := time.ParseDuration(rc.MaxDelay); err == nil {
				policy.MaxDelay = d
			}
		}
		policies[models.JobKind(kind)] = policy
	}
	return NewPolicySet(policies)
}

// For returns the policy for a kind
func (s PolicySet) For(kind models.JobKind) RetryPolicy {
	if p, ok := s.policies[kind]; ok {
		return p
	}
	return s.fallback
}
