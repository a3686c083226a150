package message

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Identifier layout: millisecond-precision UTC timestamp followed by a
// random disambiguator. The timestamp prefix has fixed width, so string
// comparison of two identifiers is time comparison first, tiebreak on
// the suffix.
const (
	idTimeLayout = "2006-01-02T15:04:05.000Z"
	idTimeLen    = len(idTimeLayout)
	idSuffixLen  = 10
)

var ErrInvalidID = errors.New("invalid message id")

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func randomSuffix() string {
	raw := make([]byte, idSuffixLen)
	if _, err := rand.Read(raw); err != nil {
		panic(err)
	}
	for i, b := range raw {
		raw[i] = base62[int(b)%len(base62)]
	}
	return string(raw)
}

// NewID generates an identifier for the given creation time.
func NewID(t time.Time) string {
	return t.UTC().Format(idTimeLayout) + "-" + randomSuffix()
}

// TimeFromID recovers the timestamp component of an identifier.
func TimeFromID(id string) (time.Time, error) {
	if len(id) < idTimeLen {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	t, err := time.Parse(idTimeLayout, id[:idTimeLen])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return t, nil
}

// EnsureOrder enforces the total-order rule: if candidate does not sort
// strictly after lastID, its timestamp component is rewritten to the
// last assigned timestamp plus one millisecond, keeping the candidate's
// disambiguator. The returned bool reports whether a correction was
// applied. An empty lastID accepts any candidate.
func EnsureOrder(lastID, candidate string) (string, bool, error) {
	if len(candidate) <= idTimeLen {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidID, candidate)
	}
	if lastID == "" || candidate > lastID {
		return candidate, false, nil
	}
	lastTime, err := TimeFromID(lastID)
	if err != nil {
		return "", false, err
	}
	bumped := lastTime.Add(time.Millisecond).UTC().Format(idTimeLayout) + candidate[idTimeLen:]
	return bumped, true, nil
}
