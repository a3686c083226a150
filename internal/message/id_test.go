package message

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDSortsByTime(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id1 := NewID(t0)
	id2 := NewID(t0.Add(time.Millisecond))
	if !(id1 < id2) {
		t.Errorf("ids must sort by time: %q vs %q", id1, id2)
	}
}

func TestTimeFromID(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 511*int(time.Millisecond), time.UTC)
	id := NewID(t0)
	got, err := TimeFromID(id)
	if err != nil {
		t.Fatalf("TimeFromID(%q) failed: %v", id, err)
	}
	if !got.Equal(t0) {
		t.Errorf("got %v, want %v", got, t0)
	}
	if _, err := TimeFromID("garbage"); err == nil {
		t.Errorf("expected error for malformed id")
	}
}

func TestEnsureOrderPassesThroughNewerIDs(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	last := NewID(t0)
	candidate := NewID(t0.Add(5 * time.Millisecond))
	got, corrected, err := EnsureOrder(last, candidate)
	if err != nil {
		t.Fatalf("EnsureOrder failed: %v", err)
	}
	if corrected || got != candidate {
		t.Errorf("newer candidate must pass unchanged, got %q corrected=%v", got, corrected)
	}
}

func TestEnsureOrderBumpsStaleIDs(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	last := NewID(t0.Add(10 * time.Millisecond))
	candidate := NewID(t0) // behind the last assigned id

	got, corrected, err := EnsureOrder(last, candidate)
	if err != nil {
		t.Fatalf("EnsureOrder failed: %v", err)
	}
	if !corrected {
		t.Fatalf("stale candidate must be corrected")
	}
	if !(got > last) {
		t.Errorf("corrected id %q must sort after last %q", got, last)
	}
	wantTime := t0.Add(11 * time.Millisecond)
	gotTime, err := TimeFromID(got)
	if err != nil {
		t.Fatalf("TimeFromID(%q) failed: %v", got, err)
	}
	if !gotTime.Equal(wantTime) {
		t.Errorf("corrected timestamp = %v, want last+1ms = %v", gotTime, wantTime)
	}
	if !strings.HasSuffix(got, candidate[idTimeLen:]) {
		t.Errorf("correction must keep the candidate's disambiguator: %q vs %q", got, candidate)
	}
}

func TestEnsureOrderEqualTimestamps(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	last := t0.UTC().Format(idTimeLayout) + "-zzzzzzzzzz"
	candidate := t0.UTC().Format(idTimeLayout) + "-aaaaaaaaaa"

	got, corrected, err := EnsureOrder(last, candidate)
	if err != nil {
		t.Fatalf("EnsureOrder failed: %v", err)
	}
	if !corrected || !(got > last) {
		t.Errorf("clock coincidence must still produce a strictly greater id: %q vs %q", got, last)
	}
}

func TestEnsureOrderEmptyLast(t *testing.T) {
	candidate := NewID(time.Now())
	got, corrected, err := EnsureOrder("", candidate)
	if err != nil || corrected || got != candidate {
		t.Errorf("empty last id must accept candidate verbatim: %q %v %v", got, corrected, err)
	}
}
