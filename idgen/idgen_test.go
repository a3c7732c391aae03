package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	if len(prev) != 36 || strings.Count(prev, "-") != 4 {
		t.Fatalf("UUIDv7: malformed %q", prev)
	}
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q does not sort after %q", id, prev)
		}
		prev = id
	}
}

func TestRunID_RoundTripsTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := RunID()
	if !strings.HasPrefix(id, RunPrefix) {
		t.Fatalf("RunID = %q", id)
	}
	got, err := RunTime(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Errorf("RunTime = %v, want about now", got)
	}
}

func TestRunTime_Invalid(t *testing.T) {
	for _, id := range []string{
		"",
		"0190b6b4-7f3a-7c2e-9d6b-3a1f2e4d5c6b", // no prefix
		"run_not-a-uuid",
		"run_6ba7b810-9dad-11d1-80b4-00c04fd430c8", // v1
	} {
		if _, err := RunTime(id); err == nil {
			t.Errorf("RunTime(%q): expected error", id)
		}
	}
}
