package scope

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"
)

// FieldType controls how a message field may be used in a scope.
type FieldType int

const (
	// TypeNone fields cannot be used as scope keys.
	TypeNone FieldType = iota
	// TypeFilter fields narrow results and are allowed in anonymous
	// token requests.
	TypeFilter
	// TypeAuthzRequired fields may only appear in a token scope when a
	// grant authorizes them.
	TypeAuthzRequired
)

// Scope field names, matching the message attributes they filter on.
const (
	FieldBus         = "bus"
	FieldChannel     = "channel"
	FieldSource      = "source"
	FieldMessageType = "type"
	FieldSticky      = "sticky"
)

type fieldSpec struct {
	typ      FieldType
	validate func(value string) error
}

func validateNotBlank(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be blank")
	}
	return nil
}

func validateURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("value must be an absolute URL")
	}
	return nil
}

func validateBool(value string) error {
	if _, err := cast.ToBoolE(value); err != nil {
		return fmt.Errorf("value must be a boolean")
	}
	return nil
}

// fieldTable maps scope field name to its type and validator; looked up
// once at parse time.
var fieldTable = map[string]fieldSpec{
	FieldBus:         {typ: TypeAuthzRequired, validate: validateNotBlank},
	FieldChannel:     {typ: TypeFilter, validate: validateNotBlank},
	FieldSource:      {typ: TypeFilter, validate: validateURL},
	FieldMessageType: {typ: TypeFilter, validate: validateNotBlank},
	FieldSticky:      {typ: TypeFilter, validate: validateBool},
}

// FieldTypeOf reports how a field may be used in a scope; unknown fields
// are TypeNone.
func FieldTypeOf(field string) FieldType {
	return fieldTable[field].typ
}
