package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the constrained value types.
// Only Null, String, Int, Float, Bool, Array, and Object implement it.
type Value interface {
	value() // sealed
}

// Null represents a missing cell. Allowed in storage JSON, forbidden in
// canonical JSON (and therefore in anything that is fingerprinted).
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64, never a truncated float.
type Int int64

func (Int) value() {}

// Float represents a finite floating-point value.
// NaN and infinities are rejected at serialization time.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of Values.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to Values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// NonDeterministicError reports a value that cannot be canonically
// serialized and therefore cannot participate in a fingerprint.
type NonDeterministicError struct {
	// Path locates the offending value, e.g. "args[2].threshold".
	Path string

	// Reason is a human-readable description of why canonicalization failed.
	Reason string
}

// Error implements the error interface.
func (e *NonDeterministicError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("non-deterministic input at %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("non-deterministic input: %s", e.Reason)
}

// IsNonDeterministic returns true if err is (or wraps) a NonDeterministicError.
func IsNonDeterministic(err error) bool {
	var nde *NonDeterministicError
	return errors.As(err, &nde)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which produces a DIFFERENT order
// for strings containing characters above the BMP boundary.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required by
// RFC 8785. Must use unicode/utf16.Encode for correct surrogate handling.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}

	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// FromGo converts a plain Go value to a Value. Supported inputs: nil, bool,
// string, int, int64, float32, float64, []any, map[string]any, and Values
// themselves. Non-finite floats and unsupported types return
// NonDeterministicError.
func FromGo(v any) (Value, error) {
	return fromGo(v, "")
}

func fromGo(v any, path string) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float32:
		return floatValue(float64(val), path)
	case float64:
		return floatValue(val, path)
	case json.Number:
		return numberValue(val, path)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := fromGo(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			arr[i] = cv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			cv, err := fromGo(elem, fmt.Sprintf("%s[%q]", path, k))
			if err != nil {
				return nil, err
			}
			obj[k] = cv
		}
		return obj, nil
	default:
		return nil, &NonDeterministicError{
			Path:   path,
			Reason: fmt.Sprintf("unsupported type %T", v),
		}
	}
}

func floatValue(f float64, path string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &NonDeterministicError{
			Path:   path,
			Reason: fmt.Sprintf("non-finite float %v", f),
		}
	}
	// Integral floats that fit int64 exactly are kept as Float, not folded
	// to Int: 2.0 and 2 are distinct analytical inputs.
	return Float(f), nil
}

func numberValue(n json.Number, path string) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, &NonDeterministicError{Path: path, Reason: fmt.Sprintf("unparseable number %s", s)}
	}
	return floatValue(f, path)
}

// formatFloat renders a Float deterministically: shortest representation
// that round-trips through float64. Negative zero is normalized here, at
// the serialization site, so directly constructed Float values get the same
// treatment as FromGo conversions. Integral values gain a ".0" suffix so
// Float and Int never serialize identically.
func formatFloat(f float64) string {
	if f == 0 {
		f = 0
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// MarshalValue serializes a Value to storage JSON: sorted keys, null
// permitted. NOT canonical - use MarshalCanonical for anything hashed.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("marshal value: non-finite float %v", float64(val))
		}
		return []byte(formatFloat(float64(val))), nil
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, fmt.Errorf("marshal key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := MarshalValue(val[k])
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue parses storage JSON into a Value. Numbers with a fraction
// or exponent decode as Float, the rest as Int; null decodes as Null.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromGo(raw, "")
}

// MarshalObject is MarshalValue specialized for Objects, for callers that
// hold a typed Object.
func MarshalObject(obj Object) ([]byte, error) {
	return MarshalValue(obj)
}

// UnmarshalObject parses storage JSON that must contain an Object.
func UnmarshalObject(data []byte) (Object, error) {
	if len(data) == 0 || string(data) == "{}" {
		return Object{}, nil
	}
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}
