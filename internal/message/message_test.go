package message

import (
	"testing"
	"time"
)

func TestScopeValue(t *testing.T) {
	msg := &Message{
		Bus:     "example.com",
		Channel: "chan1",
		Type:    "login",
		Sticky:  true,
	}
	cases := []struct {
		field string
		want  string
		ok    bool
	}{
		{"bus", "example.com", true},
		{"channel", "chan1", true},
		{"type", "login", true},
		{"source", "", false},
		{"sticky", "true", true},
		{"unknown", "", false},
	}
	for _, tc := range cases {
		got, ok := msg.ScopeValue(tc.field)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ScopeValue(%q) = (%q, %v), want (%q, %v)", tc.field, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRetentionTTLSticky(t *testing.T) {
	now := time.Now()
	msg := &Message{Sticky: true}
	if got := msg.RetentionTTL(now, time.Minute, 8*time.Hour); got != 8*time.Hour {
		t.Fatalf("sticky message TTL = %v, want %v", got, 8*time.Hour)
	}
	msg.Sticky = false
	if got := msg.RetentionTTL(now, time.Minute, 8*time.Hour); got != time.Minute {
		t.Fatalf("non-sticky message TTL = %v, want %v", got, time.Minute)
	}
}

// TestRetentionTTLExpireCaps verifies an explicit expire timestamp caps
// the TTL but never extends it past the retention policy.
func TestRetentionTTLExpireCaps(t *testing.T) {
	now := time.Now()
	msg := &Message{Expire: now.Add(30 * time.Second).Format(time.RFC3339)}
	got := msg.RetentionTTL(now, time.Minute, 8*time.Hour)
	if got > 30*time.Second || got <= 0 {
		t.Fatalf("capped TTL = %v, want at most 30s", got)
	}

	msg.Expire = now.Add(48 * time.Hour).Format(time.RFC3339)
	if got := msg.RetentionTTL(now, time.Minute, 8*time.Hour); got != time.Minute {
		t.Fatalf("TTL = %v, expire must not extend past retention", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := &Message{
		ID:      "2012-04-23T18:25:43.511Z-abcdefghij",
		Bus:     "example.com",
		Channel: "chan1",
		Sticky:  true,
		Payload: []byte(`{"hello":"world"}`),
	}
	raw, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.ID != msg.ID || decoded.Bus != msg.Bus || decoded.Channel != msg.Channel || !decoded.Sticky {
		t.Fatalf("decoded message mismatch: %+v", decoded)
	}
	if string(decoded.Payload) != `{"hello":"world"}` {
		t.Fatalf("decoded payload = %s", decoded.Payload)
	}
}
