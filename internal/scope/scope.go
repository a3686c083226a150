// Package scope implements the authorization and filter predicate
// attached to tokens and grants: an ordered mapping from message field
// to a set of acceptable values, serialized as space-separated
// "field:value" tokens.
package scope

import (
	"fmt"
	"strings"
)

const (
	separator = " "
	delimiter = ":"

	// maxTokens bounds the number of tokens parsed from one scope string.
	maxTokens = 100
)

// Scope is an immutable value object; operations return new scopes.
type Scope struct {
	order  []string
	values map[string][]string
}

// Attributes is the read surface the scope matches against, implemented
// by the message type.
type Attributes interface {
	ScopeValue(field string) (string, bool)
}

func newScope() Scope {
	return Scope{values: make(map[string][]string)}
}

func (s *Scope) add(field, value string) {
	if _, ok := s.values[field]; !ok {
		s.order = append(s.order, field)
	}
	for _, v := range s.values[field] {
		if v == value {
			return
		}
	}
	s.values[field] = append(s.values[field], value)
}

// Parse builds a scope from its wire format. Every token must contain
// the key/value delimiter; values may contain the delimiter themselves,
// so only the first one splits.
func Parse(scopeString string) (Scope, error) {
	s := newScope()
	if strings.TrimSpace(scopeString) == "" {
		return s, nil
	}
	for _, token := range strings.SplitN(scopeString, separator, maxTokens) {
		if token == "" {
			continue
		}
		idx := strings.Index(token, delimiter)
		if idx <= 0 || idx >= len(token)-1 {
			return Scope{}, fmt.Errorf("%w: token %q not in format <key>%s<value>", ErrInvalidScope, token, delimiter)
		}
		field, value := token[:idx], token[idx+1:]
		spec, known := fieldTable[field]
		if !known || spec.typ == TypeNone {
			return Scope{}, fmt.Errorf("%w: unknown scope field in token %q", ErrInvalidScope, token)
		}
		if err := spec.validate(value); err != nil {
			return Scope{}, fmt.Errorf("%w: token %q: %v", ErrInvalidScope, token, err)
		}
		s.add(field, value)
	}
	return s, nil
}

// New builds a scope from field/value pairs in the given order.
func New(pairs ...[2]string) Scope {
	s := newScope()
	for _, p := range pairs {
		s.add(p[0], p[1])
	}
	return s
}

// With returns a copy of this scope with the field set to exactly the
// given values, replacing any previous values for that field.
func (s Scope) With(field string, values ...string) Scope {
	out := newScope()
	for _, f := range s.order {
		if f == field {
			continue
		}
		for _, v := range s.values[f] {
			out.add(f, v)
		}
	}
	for _, v := range values {
		out.add(field, v)
	}
	return out
}

// Fields returns the scope's field names in insertion order.
func (s Scope) Fields() []string {
	return append([]string(nil), s.order...)
}

// FieldValues returns the values for a field in insertion order, nil if
// the field is not present.
func (s Scope) FieldValues(field string) []string {
	vals, ok := s.values[field]
	if !ok {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// IsEmpty reports whether the scope has no fields at all.
func (s Scope) IsEmpty() bool {
	return len(s.order) == 0
}

// IsAuthorizationRequired reports whether any authorization-required
// field carries a non-empty value set, meaning the scope may only be
// issued backed by a valid grant.
func (s Scope) IsAuthorizationRequired() bool {
	for _, field := range s.order {
		if FieldTypeOf(field) == TypeAuthzRequired && len(s.values[field]) > 0 {
			return true
		}
	}
	return false
}

// IsMessageInScope reports whether every scope field matches the
// message's corresponding attribute. Scope fields are conjunctive
// filters; a message missing a referenced attribute never matches.
func (s Scope) IsMessageInScope(msg Attributes) bool {
	for _, field := range s.order {
		attr, ok := msg.ScopeValue(field)
		if !ok {
			return false
		}
		if !contains(s.values[field], attr) {
			return false
		}
	}
	return true
}

// ContainsScope reports whether this scope authorizes the other one:
// for every authorization-required field of other, this scope must hold
// a superset of its values. Filter fields are not judged.
func (s Scope) ContainsScope(other Scope) bool {
	for _, field := range other.order {
		if FieldTypeOf(field) != TypeAuthzRequired {
			continue
		}
		mine, ok := s.values[field]
		if !ok {
			return false
		}
		for _, v := range other.values[field] {
			if !contains(mine, v) {
				return false
			}
		}
	}
	return true
}

// Equal compares scopes as field→value-set maps, ignoring order.
func (s Scope) Equal(other Scope) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for field, vals := range s.values {
		theirs, ok := other.values[field]
		if !ok || len(theirs) != len(vals) {
			return false
		}
		for _, v := range vals {
			if !contains(theirs, v) {
				return false
			}
		}
	}
	return true
}

// String serializes the scope in insertion order. Fields with empty
// value sets are dropped from the wire format.
func (s Scope) String() string {
	var b strings.Builder
	for _, field := range s.order {
		for _, value := range s.values[field] {
			if b.Len() > 0 {
				b.WriteString(separator)
			}
			b.WriteString(field)
			b.WriteString(delimiter)
			b.WriteString(value)
		}
	}
	return b.String()
}

// Revoke returns a new scope keeping all filter-field entries unchanged
// and removing from each authorization-required field exactly the
// values present in toRevoke. A field left with no values stays in the
// result; callers detect full revocation via IsAuthorizationRequired.
func Revoke(s, toRevoke Scope) Scope {
	out := newScope()
	for _, field := range s.order {
		revokeValues := toRevoke.values[field]
		if FieldTypeOf(field) != TypeAuthzRequired || len(revokeValues) == 0 {
			out.order = append(out.order, field)
			out.values[field] = append([]string(nil), s.values[field]...)
			continue
		}
		kept := []string{}
		for _, v := range s.values[field] {
			if !contains(revokeValues, v) {
				kept = append(kept, v)
			}
		}
		out.order = append(out.order, field)
		out.values[field] = kept
	}
	return out
}

// CheckCombine resolves the effective scope for a token request from
// the authorized (grant-backed) scope and the optional request scope.
// The rule order is load-bearing for security semantics:
//  1. an authorized scope without authorization-required fields is not a
//     valid basis for issuing tokens;
//  2. no request scope means the authorized scope applies verbatim;
//  3. a request outside the authorized scope is rejected, never
//     silently narrowed;
//  4. a request that names authorization-required fields is returned
//     as-is (the caller demanded a specific authorized subset);
//  5. otherwise merge: authorization-required fields from authorized
//     plus filter fields from the request.
func CheckCombine(authorized Scope, request *Scope) (Scope, error) {
	if !authorized.IsAuthorizationRequired() {
		return Scope{}, fmt.Errorf("%w: %s", ErrInvalidGrantScope, authorized)
	}
	if request == nil {
		return authorized.clone(), nil
	}
	if !authorized.ContainsScope(*request) {
		return Scope{}, fmt.Errorf("%w: %s", ErrUnauthorizedScope, request)
	}
	if request.IsAuthorizationRequired() {
		return request.clone(), nil
	}
	out := newScope()
	for _, field := range authorized.order {
		if FieldTypeOf(field) == TypeAuthzRequired {
			out.order = append(out.order, field)
			out.values[field] = append([]string(nil), authorized.values[field]...)
		}
	}
	for _, field := range request.order {
		if FieldTypeOf(field) == TypeFilter {
			out.order = append(out.order, field)
			out.values[field] = append([]string(nil), request.values[field]...)
		}
	}
	return out, nil
}

// Union merges the value sets of the given scopes, preserving
// first-seen field and value order.
func Union(scopes ...Scope) Scope {
	out := newScope()
	for _, s := range scopes {
		for _, field := range s.order {
			for _, v := range s.values[field] {
				out.add(field, v)
			}
		}
	}
	return out
}

// EncodeValues renders a list of values for one field as a scope string,
// e.g. ("bus", ["a.com","b.com"]) -> "bus:a.com bus:b.com".
func EncodeValues(field string, values []string) string {
	var b strings.Builder
	for _, v := range values {
		if b.Len() > 0 {
			b.WriteString(separator)
		}
		b.WriteString(field)
		b.WriteString(delimiter)
		b.WriteString(v)
	}
	return b.String()
}

func (s Scope) clone() Scope {
	out := newScope()
	for _, field := range s.order {
		out.order = append(out.order, field)
		out.values[field] = append([]string(nil), s.values[field]...)
	}
	return out
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
