package testutil

import "testing"

// Given, When and Then name nested subtests so scenario output reads as a
// sentence in `go test -v`.
func Given(t *testing.T, desc string, fn func(t *testing.T)) { stage(t, "Given", desc, fn) }

func When(t *testing.T, desc string, fn func(t *testing.T)) { stage(t, "When", desc, fn) }

func Then(t *testing.T, desc string, fn func(t *testing.T)) { stage(t, "Then", desc, fn) }

func stage(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) && keyword != "Then" {
		// later stages depend on this one
		t.FailNow()
	}
}
