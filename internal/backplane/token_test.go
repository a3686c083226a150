package backplane

import (
	"strings"
	"testing"
	"time"

	"github.com/openbusio/backplane/internal/scope"
)

// TestTokenIDPrefix verifies privilege and type are encoded in the id
// prefix so a wrong-type token is rejectable without a store lookup.
func TestTokenIDPrefix(t *testing.T) {
	cases := []struct {
		typ       TokenType
		anonymous bool
		prefix    string
	}{
		{TokenTypeAccess, true, "an:"},
		{TokenTypeRefresh, true, "ar:"},
		{TokenTypeAccess, false, "pa:"},
		{TokenTypeRefresh, false, "pr:"},
	}
	for _, tc := range cases {
		tok := NewToken(tc.typ, tc.anonymous, scope.Scope{}, time.Now().Add(time.Hour))
		if !strings.HasPrefix(tok.ID, tc.prefix) {
			t.Fatalf("NewToken(%s, anonymous=%v) id = %q, want prefix %q", tc.typ, tc.anonymous, tok.ID, tc.prefix)
		}
	}
}

func TestTokenUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewToken(TokenTypeAccess, false, scope.Scope{}, time.Now().Add(time.Hour))
		if seen[tok.ID] {
			t.Fatalf("duplicate token id generated: %s", tok.ID)
		}
		seen[tok.ID] = true
	}
}

func TestTokenIsExpired(t *testing.T) {
	now := time.Now()
	tok := NewToken(TokenTypeAccess, true, scope.Scope{}, now.Add(time.Hour))
	if tok.IsExpired(now) {
		t.Fatal("token expired before its expiry")
	}
	if !tok.IsExpired(now.Add(2 * time.Hour)) {
		t.Fatal("token not expired after its expiry")
	}
}

func TestTokenEffectiveScope(t *testing.T) {
	sc, err := scope.Parse("bus:example.com channel:abc type:login")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tok := NewToken(TokenTypeAccess, false, sc, time.Now().Add(time.Hour))
	got, err := tok.EffectiveScope()
	if err != nil {
		t.Fatalf("EffectiveScope failed: %v", err)
	}
	if !got.Equal(sc) {
		t.Fatalf("EffectiveScope = %q, want %q", got, sc)
	}
}

func TestIndexEntry(t *testing.T) {
	entry := IndexEntry("example.com", "chan1", "2012-04-23T18:25:43.511Z-abcdefghij")
	want := "example.com chan1 2012-04-23T18:25:43.511Z-abcdefghij"
	if entry != want {
		t.Fatalf("IndexEntry = %q, want %q", entry, want)
	}
}
