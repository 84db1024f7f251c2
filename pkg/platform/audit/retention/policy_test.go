package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	audit "veritas/pkg/platform/audit"
)

func TestPolicyMinRetention(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, DefaultComplianceRetention, policy.MinRetention(audit.CategoryCompliance))
	assert.Equal(t, DefaultSecurityRetention, policy.MinRetention(audit.CategorySecurity))
	assert.Equal(t, DefaultOperationsRetention, policy.MinRetention(audit.CategoryOperations))

	t.Run("unknown category falls back to the compliance floor", func(t *testing.T) {
		assert.Equal(t, DefaultComplianceRetention, policy.MinRetention(audit.EventCategory("unheard_of")))
	})
}

func TestConfiguredPolicyClampsAtDefaults(t *testing.T) {
	policy := ConfiguredPolicy(time.Hour, 10*365*24*time.Hour, time.Hour)

	// Shorter-than-default values are ignored; longer ones are honored.
	assert.Equal(t, DefaultComplianceRetention, policy.MinRetention(audit.CategoryCompliance))
	assert.Equal(t, 10*365*24*time.Hour, policy.MinRetention(audit.CategorySecurity))
	assert.Equal(t, DefaultOperationsRetention, policy.MinRetention(audit.CategoryOperations))
}

func TestPolicyIsExpired(t *testing.T) {
	policy := NewPolicy(map[audit.EventCategory]time.Duration{
		audit.CategoryOperations: 24 * time.Hour,
	})
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	fresh := audit.Event{Category: audit.CategoryOperations, Timestamp: now.Add(-time.Hour)}
	stale := audit.Event{Category: audit.CategoryOperations, Timestamp: now.Add(-25 * time.Hour)}

	assert.False(t, policy.IsExpired(fresh, now))
	assert.True(t, policy.IsExpired(stale, now))
}

func TestPolicyRedact(t *testing.T) {
	policy := DefaultPolicy()

	t.Run("strips export-sensitive fields from sensitive categories", func(t *testing.T) {
		event := audit.Event{
			Category: audit.CategoryCompliance,
			Payload: map[string]string{
				"unit_id":  "u1",
				"actor_ip": "192.0.2.7",
				"email":    "x@example.com",
			},
		}
		redacted := policy.Redact(event)
		assert.Equal(t, map[string]string{"unit_id": "u1"}, redacted.Payload)
		// The source event is untouched.
		assert.Contains(t, event.Payload, "actor_ip")
	})

	t.Run("operations events pass through", func(t *testing.T) {
		event := audit.Event{
			Category: audit.CategoryOperations,
			Payload:  map[string]string{"actor_ip": "192.0.2.7"},
		}
		redacted := policy.Redact(event)
		assert.Equal(t, event.Payload, redacted.Payload)
	})
}
