// Package retention governs audit record lifetime and export redaction.
//
// Audit events are append-only everywhere else in the system; this package
// holds the single privileged expiry path, invoked only by the scheduled
// sweep job, and the redaction rules applied before any export leaves the
// platform.
package retention

import (
	"time"

	audit "veritas/pkg/platform/audit"
)

// Default minimum retention per category. Compliance records carry the
// regulatory floor; do not lower it without legal sign-off.
const (
	DefaultComplianceRetention = 7 * 365 * 24 * time.Hour
	DefaultSecurityRetention   = 2 * 365 * 24 * time.Hour
	DefaultOperationsRetention = 90 * 24 * time.Hour
)

// exportSensitiveKeys are payload fields stripped before export from
// categories flagged sensitive. They are legitimate to store internally but
// must not leave the platform in bulk exports.
var exportSensitiveKeys = map[string]bool{
	"actor_ip":    true,
	"email":       true,
	"account_ref": true,
	"invoice_ref": true,
}

// Policy holds per-category minimum retention durations and flags marking
// which categories may contain sensitive fields requiring redaction before
// any export.
type Policy struct {
	minRetention map[audit.EventCategory]time.Duration
	sensitive    map[audit.EventCategory]bool
}

// DefaultPolicy returns the production policy: compliance events kept at
// least seven years, security two years, operations ninety days; compliance
// and security categories flagged sensitive.
func DefaultPolicy() *Policy {
	return NewPolicy(map[audit.EventCategory]time.Duration{
		audit.CategoryCompliance: DefaultComplianceRetention,
		audit.CategorySecurity:   DefaultSecurityRetention,
		audit.CategoryOperations: DefaultOperationsRetention,
	})
}

// ConfiguredPolicy builds a policy from per-category durations supplied by
// deployment configuration. Each duration is clamped at the category default:
// retention can be extended, never shortened.
func ConfiguredPolicy(compliance, security, operations time.Duration) *Policy {
	return NewPolicy(map[audit.EventCategory]time.Duration{
		audit.CategoryCompliance: max(compliance, DefaultComplianceRetention),
		audit.CategorySecurity:   max(security, DefaultSecurityRetention),
		audit.CategoryOperations: max(operations, DefaultOperationsRetention),
	})
}

// NewPolicy builds a policy from explicit per-category durations. Categories
// missing from the map fall back to the compliance floor (fail safe: unknown
// data is kept, not deleted).
func NewPolicy(minRetention map[audit.EventCategory]time.Duration) *Policy {
	p := &Policy{
		minRetention: make(map[audit.EventCategory]time.Duration, len(minRetention)),
		sensitive: map[audit.EventCategory]bool{
			audit.CategoryCompliance: true,
			audit.CategorySecurity:   true,
		},
	}
	for category, d := range minRetention {
		p.minRetention[category] = d
	}
	return p
}

// MinRetention returns the minimum retention duration for a category.
func (p *Policy) MinRetention(category audit.EventCategory) time.Duration {
	if d, ok := p.minRetention[category]; ok {
		return d
	}
	return DefaultComplianceRetention
}

// IsExpired reports whether an event is past its category's minimum
// retention at the given time.
func (p *Policy) IsExpired(event audit.Event, now time.Time) bool {
	return now.Sub(event.Timestamp) > p.MinRetention(event.Category)
}

// Redact returns a copy of the event with export-sensitive payload fields
// removed. Events in categories not flagged sensitive pass through with
// their payload copied, never shared.
func (p *Policy) Redact(event audit.Event) audit.Event {
	redacted := event
	redacted.Payload = make(map[string]string, len(event.Payload))
	strip := p.sensitive[event.Category]
	for k, v := range event.Payload {
		if strip && exportSensitiveKeys[k] {
			continue
		}
		redacted.Payload[k] = v
	}
	return redacted
}
