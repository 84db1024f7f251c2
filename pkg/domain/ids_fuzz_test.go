//go:build go1.18

package domain

import (
	"testing"

	"github.com/google/uuid"
)

// FuzzParseUnitID checks that parsing never panics on arbitrary input and
// always returns either a valid ID or an error, never both.
func FuzzParseUnitID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE invoices;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseUnitID(input)
		if err != nil {
			if !id.IsNil() {
				t.Fatalf("error with non-nil ID: %v / %v", err, id)
			}
			return
		}
		if id.IsNil() {
			t.Fatal("nil ID without error")
		}
		if _, parseErr := uuid.Parse(id.String()); parseErr != nil {
			t.Fatalf("accepted ID does not round-trip: %v", parseErr)
		}
	})
}
