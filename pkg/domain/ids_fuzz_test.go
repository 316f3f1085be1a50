package domain

import (
	"testing"

	"github.com/google/uuid"
)

// FuzzParse checks that the Parse functions agree with each other, never
// accept the nil UUID and that accepted input survives a String round trip.
func FuzzParse(f *testing.F) {
	for _, seed := range []string{
		"",
		"6f1c2b0e-8a4d-4c3e-9b7a-2d5e1f0a9c84",
		"{6f1c2b0e-8a4d-4c3e-9b7a-2d5e1f0a9c84}",
		"urn:uuid:6f1c2b0e-8a4d-4c3e-9b7a-2d5e1f0a9c84",
		uuid.Nil.String(),
		"\xff\xfe",
		"responder-7",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		errs := parsers(input)
		accepted := errs["user"] == nil
		for kind, err := range errs {
			if (err == nil) != accepted {
				t.Fatalf("%s parser disagrees on %q", kind, input)
			}
		}
		if !accepted {
			return
		}
		id, _ := ParseEscalationID(input)
		if id.IsNil() {
			t.Fatalf("accepted nil id from %q", input)
		}
		again, err := ParseEscalationID(id.String())
		if err != nil || again != id {
			t.Fatalf("round trip of %q: %v", input, err)
		}
	})
}
