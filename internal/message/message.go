// Package message defines the bus message and its globally ordered
// identifier. Identifiers sort lexicographically in commit order; the
// timestamp prefix makes them comparable as strings and recoverable as
// times.
package message

import (
	"encoding/json"
	"strconv"
	"time"
)

type Message struct {
	ID      string          `json:"id,omitempty"`
	Bus     string          `json:"bus"`
	Channel string          `json:"channel"`
	Source  string          `json:"source,omitempty"`
	Type    string          `json:"type,omitempty"`
	Sticky  bool            `json:"sticky"`
	Expire  string          `json:"expire,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ScopeValue exposes message attributes to the scope algebra.
func (m *Message) ScopeValue(field string) (string, bool) {
	switch field {
	case "bus":
		return m.Bus, m.Bus != ""
	case "channel":
		return m.Channel, m.Channel != ""
	case "source":
		return m.Source, m.Source != ""
	case "type":
		return m.Type, m.Type != ""
	case "sticky":
		return strconv.FormatBool(m.Sticky), true
	default:
		return "", false
	}
}

// RetentionTTL returns how long the message body should live in the
// store. Sticky messages use the extended retention. An explicit expire
// timestamp caps the TTL but never extends it.
func (m *Message) RetentionTTL(now time.Time, retention, stickyRetention time.Duration) time.Duration {
	ttl := retention
	if m.Sticky {
		ttl = stickyRetention
	}
	if m.Expire != "" {
		if expireAt, err := time.Parse(time.RFC3339, m.Expire); err == nil {
			if until := expireAt.Sub(now); until > 0 && until < ttl {
				ttl = until
			}
		}
	}
	return ttl
}

func (m *Message) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func Decode(raw string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
