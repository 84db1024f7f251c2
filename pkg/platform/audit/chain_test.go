package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/pkg/domain"
)

func TestComputeHash(t *testing.T) {
	base := Event{
		EventID:       1,
		Timestamp:     time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		Type:          EventUnitCommitted,
		Severity:      SeverityInfo,
		Category:      CategoryCompliance,
		CorrelationID: domain.CorrelationID("order-1"),
		Payload:       map[string]string{"unit_id": "u1", "stage": "applied"},
		PrevHash:      GenesisHash,
	}

	t.Run("deterministic", func(t *testing.T) {
		first, err := ComputeHash(base)
		require.NoError(t, err)
		second, err := ComputeHash(base)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("covers payload", func(t *testing.T) {
		original, err := ComputeHash(base)
		require.NoError(t, err)

		mutated := base
		mutated.Payload = map[string]string{"unit_id": "u1", "stage": "tampered"}
		changed, err := ComputeHash(mutated)
		require.NoError(t, err)
		assert.NotEqual(t, original, changed)
	})

	t.Run("covers prev hash", func(t *testing.T) {
		original, err := ComputeHash(base)
		require.NoError(t, err)

		mutated := base
		mutated.PrevHash = "deadbeef"
		changed, err := ComputeHash(mutated)
		require.NoError(t, err)
		assert.NotEqual(t, original, changed)
	})

	t.Run("severity and category are not chain content", func(t *testing.T) {
		original, err := ComputeHash(base)
		require.NoError(t, err)

		mutated := base
		mutated.Severity = SeverityCritical
		mutated.Category = CategoryOperations
		same, err := ComputeHash(mutated)
		require.NoError(t, err)
		assert.Equal(t, original, same)
	})

	t.Run("timestamp normalized to UTC", func(t *testing.T) {
		original, err := ComputeHash(base)
		require.NoError(t, err)

		zone := time.FixedZone("CET", 3600)
		mutated := base
		mutated.Timestamp = base.Timestamp.In(zone)
		same, err := ComputeHash(mutated)
		require.NoError(t, err)
		assert.Equal(t, original, same)
	})
}

func TestGenesisHash(t *testing.T) {
	assert.Len(t, GenesisHash, 64)
	for _, c := range GenesisHash {
		assert.Equal(t, '0', c)
	}
}
