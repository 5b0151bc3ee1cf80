package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Minute,
		MaxDelay:   30 * time.Minute,
	}

	t.Run("first retry uses exponent zero", func(t *testing.T) {
		assert.Equal(t, 1*time.Minute, policy.Delay(1))
	})

	t.Run("doubles per retry", func(t *testing.T) {
		assert.Equal(t, 2*time.Minute, policy.Delay(2))
		assert.Equal(t, 4*time.Minute, policy.Delay(3))
		assert.Equal(t, 8*time.Minute, policy.Delay(4))
	})

	t.Run("monotonically non-decreasing", func(t *testing.T) {
		prev := time.Duration(0)
		for n := 1; n <= 20; n++ {
			d := policy.Delay(n)
			assert.GreaterOrEqual(t, d, prev, "delay(%d) < delay(%d)", n, n-1)
			prev = d
		}
	})

	t.Run("saturates at ceiling", func(t *testing.T) {
		assert.Equal(t, 30*time.Minute, policy.Delay(6))
		assert.Equal(t, 30*time.Minute, policy.Delay(50))
		assert.Equal(t, 30*time.Minute, policy.Delay(100))
	})

	t.Run("zero retry count treated as first", func(t *testing.T) {
		assert.Equal(t, policy.Delay(1), policy.Delay(0))
	})

	t.Run("huge exponent does not overflow", func(t *testing.T) {
		assert.Equal(t, 30*time.Minute, policy.Delay(10000))
	})
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}

	assert.True(t, policy.ShouldRetry(0))
	assert.True(t, policy.ShouldRetry(2))
	assert.False(t, policy.ShouldRetry(3))
	assert.False(t, policy.ShouldRetry(4))
}

func TestPolicySetFallback(t *testing.T) {
	set := NewPolicySet(map[models.JobKind]RetryPolicy{
		models.JobKindAIProcessing: {MaxRetries: 7, BaseDelay: 2 * time.Minute, MaxDelay: 20 * time.Minute},
		models.JobKindRSSFetch:     {MaxRetries: 2, BaseDelay: 30 * time.Second, MaxDelay: 5 * time.Minute},
	})

	t.Run("explicit policy wins", func(t *testing.T) {
		assert.Equal(t, 2, set.For(models.JobKindRSSFetch).MaxRetries)
	})

	t.Run("unlisted kind falls back to ai_processing", func(t *testing.T) {
		assert.Equal(t, 7, set.For(models.JobKindCleanup).MaxRetries)
		assert.Equal(t, 2*time.Minute, set.For(models.JobKindHealthCheck).BaseDelay)
	})
}

func TestPoliciesFromConfig(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Queue.Retry["rss_fetch"] = common.RetryConfig{
		MaxRetries: 4,
		BaseDelay:  "10s",
		MaxDelay:   "2m",
	}

	set := PoliciesFromConfig(cfg)

	policy := set.For(models.JobKindRSSFetch)
	assert.Equal(t, 4, policy.MaxRetries)
	assert.Equal(t, 10*time.Second, policy.BaseDelay)
	assert.Equal(t, 2*time.Minute, policy.MaxDelay)
}
