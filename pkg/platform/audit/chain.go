package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the fixed PrevHash of the first event in every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// hashRecord is the canonical serialization an event hash covers. All fields
// are concrete types (the payload map marshals with sorted keys) so
// json.Marshal output is deterministic and hashes are reproducible.
type hashRecord struct {
	EventID   int64             `json:"event_id"`
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"event_type"`
	Payload   map[string]string `json:"payload"`
	PrevHash  string            `json:"prev_hash"`
}

// ComputeHash returns the hex SHA-256 of the event's canonical serialization.
// The hash covers {event_id, timestamp, event_type, payload, prev_hash};
// severity and category are routing metadata, not chain content.
func ComputeHash(e Event) (string, error) {
	record := hashRecord{
		EventID:   e.EventID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType: string(e.Type),
		Payload:   e.Payload,
		PrevHash:  e.PrevHash,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal hash record: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
