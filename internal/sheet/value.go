package sheet

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Kind is the variant tag of a Value, and doubles as a declared field type.
type Kind string

const (
	// KindAny is only valid as a declared type: the field accepts every variant.
	KindAny    Kind = "any"
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	// KindList marks a container; its elements are the entity's children.
	KindList Kind = "list"
)

// ParseKind converts a kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAny, KindText, KindNumber, KindBool, KindList:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, s)
	}
}

// Accepts reports whether a field declared as k can hold a value of kind v.
func (k Kind) Accepts(v Kind) bool {
	return k == KindAny || k == v
}

// Value is a tagged union over text, number, bool and list.
// The zero Value is invalid and rejected by every mutation.
type Value struct {
	kind   Kind
	text   string
	number float64
	flag   bool
}

// Text creates a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number creates a number value.
func Number(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// List creates a list value. List elements are child entities, so the value
// itself carries no payload.
func List() Value {
	return Value{kind: KindList}
}

// Kind returns the variant tag ("" for the zero Value).
func (v Value) Kind() Kind {
	return v.kind
}

// AsText returns the text payload and whether v is a text value.
func (v Value) AsText() (string, bool) {
	return v.text, v.kind == KindText
}

// AsNumber returns the number payload and whether v is a number value.
func (v Value) AsNumber() (float64, bool) {
	return v.number, v.kind == KindNumber
}

// AsBool returns the boolean payload and whether v is a bool value.
func (v Value) AsBool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// Equal reports whether two values have the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.number == o.number
	case KindBool:
		return v.flag == o.flag
	default:
		return true
	}
}

// String renders the payload for display.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindList:
		return "[list]"
	default:
		return "<invalid>"
	}
}

// validate rejects the zero Value and numbers JSON cannot represent.
func (v Value) validate() error {
	switch v.kind {
	case KindText:
		if !utf8.ValidString(v.text) {
			return fmt.Errorf("%w: text is not valid UTF-8: %q", ErrInvalidArgument, v.text)
		}
		return nil
	case KindBool, KindList:
		return nil
	case KindNumber:
		if math.IsNaN(v.number) || math.IsInf(v.number, 0) {
			return fmt.Errorf("%w: number must be finite, got %v", ErrInvalidArgument, v.number)
		}
		return nil
	default:
		return fmt.Errorf("%w: value has no kind", ErrInvalidArgument)
	}
}

// ParseValue converts user input into a value of the given kind.
// Used by text front-ends; KindList ignores s.
func ParseValue(kind Kind, s string) (Value, error) {
	switch kind {
	case KindText:
		return Text(s), nil
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, s)
		}
		v := Number(f)
		return v, v.validate()
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidArgument, s)
		}
		return Bool(b), nil
	case KindList:
		return List(), nil
	default:
		return Value{}, fmt.Errorf("%w: cannot parse a value of kind %q", ErrInvalidArgument, kind)
	}
}
