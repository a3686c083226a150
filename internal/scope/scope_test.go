package scope

import (
	"errors"
	"testing"
)

type fakeMessage map[string]string

func (m fakeMessage) ScopeValue(field string) (string, bool) {
	v, ok := m[field]
	return v, ok
}

func TestParseRoundTrip(t *testing.T) {
	in := "bus:example.com channel:abc123 source:https://origin.example.com/feed"
	s, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", in, err)
	}
	if got := s.String(); got != in {
		t.Errorf("round trip mismatch: got %q, want %q", got, in)
	}
}

func TestParseValueWithDelimiter(t *testing.T) {
	s, err := Parse("source:https://example.com:8080/x")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := s.FieldValues(FieldSource); len(got) != 1 || got[0] != "https://example.com:8080/x" {
		t.Errorf("unexpected source values: %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"busexample.com",      // no delimiter
		"bus:",                // empty value
		"nonsense:value",      // unknown field
		"sticky:maybe",        // failed validator
		"source:not-a-url",    // failed validator
		"bus:ok junk",         // malformed second token
		":value",              // empty key
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("Parse(%q): got %v, want ErrInvalidScope", in, err)
		}
	}
}

func TestParseEmptyScope(t *testing.T) {
	s, err := Parse("   ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !s.IsEmpty() || s.IsAuthorizationRequired() {
		t.Errorf("expected empty, non-privileged scope, got %q", s)
	}
}

func TestIsAuthorizationRequired(t *testing.T) {
	privileged, _ := Parse("bus:a.com channel:c1")
	if !privileged.IsAuthorizationRequired() {
		t.Errorf("scope with bus value should require authorization")
	}
	filter, _ := Parse("channel:c1 type:test")
	if filter.IsAuthorizationRequired() {
		t.Errorf("filter-only scope should not require authorization")
	}
}

func TestIsMessageInScope(t *testing.T) {
	msg := fakeMessage{"bus": "a.com", "channel": "c1", "type": "login"}
	tests := []struct {
		scope string
		want  bool
	}{
		{"bus:a.com", true},
		{"bus:a.com channel:c1", true},
		{"bus:a.com bus:b.com", true}, // value-set membership
		{"bus:b.com", false},
		{"bus:a.com channel:other", false},
		{"bus:a.com sticky:true", false}, // attribute absent from message
		{"", true},                       // empty scope matches everything
	}
	for _, tt := range tests {
		s, err := Parse(tt.scope)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.scope, err)
		}
		if got := s.IsMessageInScope(msg); got != tt.want {
			t.Errorf("scope %q: IsMessageInScope = %v, want %v", tt.scope, got, tt.want)
		}
	}
}

func TestContainsScope(t *testing.T) {
	authorized, _ := Parse("bus:a.com bus:b.com")
	narrower, _ := Parse("bus:a.com")
	broader, _ := Parse("bus:a.com bus:c.com")
	filters, _ := Parse("channel:whatever type:anything")

	if !authorized.ContainsScope(narrower) {
		t.Errorf("superset should contain subset")
	}
	if authorized.ContainsScope(broader) {
		t.Errorf("must not contain scope with unauthorized bus")
	}
	if !authorized.ContainsScope(filters) {
		t.Errorf("filter fields must not be judged for containment")
	}
}

func TestCheckCombine(t *testing.T) {
	authorized, _ := Parse("bus:a.com")

	// no request scope: authorized verbatim
	got, err := CheckCombine(authorized, nil)
	if err != nil {
		t.Fatalf("CheckCombine(authorized, nil) failed: %v", err)
	}
	if !got.Equal(authorized) {
		t.Errorf("got %q, want %q", got, authorized)
	}

	// unauthorized bus fails, never narrows silently
	other, _ := Parse("bus:b.com")
	if _, err := CheckCombine(authorized, &other); !errors.Is(err, ErrUnauthorizedScope) {
		t.Errorf("got %v, want ErrUnauthorizedScope", err)
	}

	// filter request merges with authorized buses
	filter, _ := Parse("channel:c1")
	got, err = CheckCombine(authorized, &filter)
	if err != nil {
		t.Fatalf("CheckCombine failed: %v", err)
	}
	want, _ := Parse("bus:a.com channel:c1")
	if !got.Equal(want) {
		t.Errorf("got %q, want %q", got, want)
	}

	// request naming an authorized subset is returned as-is
	broad, _ := Parse("bus:a.com bus:b.com")
	subset, _ := Parse("bus:b.com channel:c9")
	got, err = CheckCombine(broad, &subset)
	if err != nil {
		t.Fatalf("CheckCombine failed: %v", err)
	}
	if !got.Equal(subset) {
		t.Errorf("got %q, want %q", got, subset)
	}

	// authorized scope without authz-required fields is not a grant basis
	filtersOnly, _ := Parse("channel:c1")
	if _, err := CheckCombine(filtersOnly, nil); !errors.Is(err, ErrInvalidGrantScope) {
		t.Errorf("got %v, want ErrInvalidGrantScope", err)
	}
}

func TestRevoke(t *testing.T) {
	s, _ := Parse("bus:a.com bus:b.com channel:c1")
	toRevoke, _ := Parse("bus:a.com")

	revoked := Revoke(s, toRevoke)
	if got := revoked.FieldValues(FieldBus); len(got) != 1 || got[0] != "b.com" {
		t.Errorf("unexpected bus values after revoke: %v", got)
	}
	if got := revoked.FieldValues(FieldChannel); len(got) != 1 || got[0] != "c1" {
		t.Errorf("filter fields must survive revocation untouched: %v", got)
	}

	// revoking the same values twice is a no-op the second time
	again := Revoke(revoked, toRevoke)
	if !again.Equal(revoked) {
		t.Errorf("revoke not idempotent: %q vs %q", again, revoked)
	}

	// revoking everything leaves an empty authz field in place
	all, _ := Parse("bus:a.com bus:b.com")
	gone := Revoke(s, all)
	if gone.IsAuthorizationRequired() {
		t.Errorf("fully revoked scope still requires authorization: %q", gone)
	}
	if vals := gone.FieldValues(FieldBus); vals == nil || len(vals) != 0 {
		t.Errorf("bus field should remain with an empty value set, got %v", vals)
	}
}

func TestWithReplacesValues(t *testing.T) {
	s, _ := Parse("channel:old type:login")
	out := s.With(FieldChannel, "new").With(FieldBus, "a.com")
	want, _ := Parse("type:login channel:new bus:a.com")
	if !out.Equal(want) {
		t.Errorf("got %q, want %q", out, want)
	}
	// original untouched
	if got := s.FieldValues(FieldChannel); len(got) != 1 || got[0] != "old" {
		t.Errorf("With must not mutate the receiver: %v", got)
	}
}
