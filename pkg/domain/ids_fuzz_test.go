//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParsePropertyID tests that parsing never panics on arbitrary input and
// always returns either a valid ID or an error. Trust boundary functions must
// handle arbitrary input safely.
func FuzzParsePropertyID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE properties;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParsePropertyID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatalf("parse accepted input %q but produced nil ID", input)
		}
		roundTrip, err2 := ParsePropertyID(id.String())
		if err2 != nil {
			t.Fatalf("round trip of accepted input %q failed: %v", input, err2)
		}
		if roundTrip != id {
			t.Fatalf("round trip mismatch for %q", input)
		}
		if !utf8.ValidString(id.String()) {
			t.Fatalf("String() produced invalid UTF-8 for %q", input)
		}
	})
}

// FuzzParseRole verifies the role allowlist holds for arbitrary input.
func FuzzParseRole(f *testing.F) {
	f.Add("citizen")
	f.Add("land_officer")
	f.Add("admin")
	f.Add("")
	f.Add("ADMIN")
	f.Add("citizen ")

	f.Fuzz(func(t *testing.T, input string) {
		role, err := ParseRole(input)
		if err != nil {
			return
		}
		if !role.IsValid() {
			t.Fatalf("parse accepted %q but role is not valid", input)
		}
		if input != role.String() {
			t.Fatalf("parse mutated input %q to %q", input, role.String())
		}
	})
}
