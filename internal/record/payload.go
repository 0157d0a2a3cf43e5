// Package record defines the structured result of one recorded execution:
// a mapping from named slots to a closed set of tagged variants
// (table | scalar | text | image). Anything outside the set is rejected
// explicitly rather than silently stringified.
package record

import (
	"errors"
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/vault"
)

// Kind tags a payload slot variant.
type Kind string

const (
	KindTable  Kind = "table"
	KindScalar Kind = "scalar"
	KindText   Kind = "text"
	KindImage  Kind = "image"
)

// ValidKinds defines the closed slot kind set.
var ValidKinds = map[Kind]bool{
	KindTable:  true,
	KindScalar: true,
	KindText:   true,
	KindImage:  true,
}

// Image is a rendered artifact: raw bytes plus how to interpret them.
type Image struct {
	Data      []byte
	MediaType string // e.g. "image/png"
	Caption   string
}

// Slot is one tagged variant. Exactly one of the value fields is set,
// according to Kind.
type Slot struct {
	Kind   Kind
	Table  *vault.Table
	Scalar canon.Value
	Text   string
	Image  *Image
}

// UnsupportedResultTypeError reports a payload slot outside the closed
// variant set. Executions producing one are not cached and not audited.
type UnsupportedResultTypeError struct {
	Slot   string
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedResultTypeError) Error() string {
	return fmt.Sprintf("unsupported result type in slot %q: %s", e.Slot, e.Reason)
}

// IsUnsupportedResultType returns true if err is (or wraps) an
// UnsupportedResultTypeError.
func IsUnsupportedResultType(err error) bool {
	var ue *UnsupportedResultTypeError
	return errors.As(err, &ue)
}

// Payload is an ordered mapping from slot name to variant.
// Insertion order is preserved so reports render slots in the order the
// analysis produced them.
type Payload struct {
	slots map[string]Slot
	order []string
}

// NewPayload creates an empty payload.
func NewPayload() *Payload {
	return &Payload{slots: make(map[string]Slot)}
}

func (p *Payload) set(name string, s Slot) error {
	if name == "" {
		return fmt.Errorf("payload slot: empty name")
	}
	if _, exists := p.slots[name]; exists {
		return fmt.Errorf("payload slot %q already set", name)
	}
	p.slots[name] = s
	p.order = append(p.order, name)
	return nil
}

// SetTable adds a table slot.
func (p *Payload) SetTable(name string, t *vault.Table) error {
	if t == nil {
		return fmt.Errorf("payload slot %q: nil table", name)
	}
	if err := t.Validate(); err != nil {
		return &UnsupportedResultTypeError{Slot: name, Reason: err.Error()}
	}
	return p.set(name, Slot{Kind: KindTable, Table: t})
}

// SetScalar adds a scalar slot. Scalars are String, Int, Float, or Bool;
// composite or null values are rejected.
func (p *Payload) SetScalar(name string, v canon.Value) error {
	switch v.(type) {
	case canon.String, canon.Int, canon.Float, canon.Bool:
	default:
		return &UnsupportedResultTypeError{Slot: name, Reason: fmt.Sprintf("%T is not a scalar", v)}
	}
	return p.set(name, Slot{Kind: KindScalar, Scalar: v})
}

// SetText adds a free-text slot.
func (p *Payload) SetText(name, text string) error {
	return p.set(name, Slot{Kind: KindText, Text: text})
}

// SetImage adds a rendered-artifact slot.
func (p *Payload) SetImage(name string, img *Image) error {
	if img == nil || len(img.Data) == 0 {
		return fmt.Errorf("payload slot %q: empty image", name)
	}
	if img.MediaType == "" {
		return fmt.Errorf("payload slot %q: image has no media type", name)
	}
	return p.set(name, Slot{Kind: KindImage, Image: img})
}

// Names returns slot names in insertion order.
func (p *Payload) Names() []string {
	return append([]string(nil), p.order...)
}

// Get returns the named slot.
func (p *Payload) Get(name string) (Slot, bool) {
	s, ok := p.slots[name]
	return s, ok
}

// Len returns the slot count.
func (p *Payload) Len() int {
	return len(p.order)
}

// Validate checks every slot against the closed variant set. The setters
// enforce this on the way in; Validate re-checks payloads that arrived from
// user code or storage.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("nil payload")
	}
	if len(p.order) == 0 {
		return fmt.Errorf("payload has no slots")
	}
	for _, name := range p.order {
		s := p.slots[name]
		if !ValidKinds[s.Kind] {
			return &UnsupportedResultTypeError{Slot: name, Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
		}
		switch s.Kind {
		case KindTable:
			if s.Table == nil {
				return &UnsupportedResultTypeError{Slot: name, Reason: "table slot with no table"}
			}
			if err := s.Table.Validate(); err != nil {
				return &UnsupportedResultTypeError{Slot: name, Reason: err.Error()}
			}
		case KindScalar:
			switch s.Scalar.(type) {
			case canon.String, canon.Int, canon.Float, canon.Bool:
			default:
				return &UnsupportedResultTypeError{Slot: name, Reason: fmt.Sprintf("%T is not a scalar", s.Scalar)}
			}
		case KindImage:
			if s.Image == nil || len(s.Image.Data) == 0 {
				return &UnsupportedResultTypeError{Slot: name, Reason: "image slot with no data"}
			}
		}
	}
	return nil
}

// Equal reports whether two payloads have identical slots in identical order.
func (p *Payload) Equal(other *Payload) bool {
	if other == nil || len(p.order) != len(other.order) {
		return false
	}
	for i, name := range p.order {
		if other.order[i] != name {
			return false
		}
		a, b := p.slots[name], other.slots[name]
		if a.Kind != b.Kind {
			return false
		}
		switch a.Kind {
		case KindTable:
			if !a.Table.Equal(b.Table) {
				return false
			}
		case KindScalar:
			if a.Scalar != b.Scalar {
				return false
			}
		case KindText:
			if a.Text != b.Text {
				return false
			}
		case KindImage:
			if a.Image.MediaType != b.Image.MediaType ||
				a.Image.Caption != b.Image.Caption ||
				string(a.Image.Data) != string(b.Image.Data) {
				return false
			}
		}
	}
	return true
}
