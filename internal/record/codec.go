package record

import (
	"encoding/json"
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/vault"
)

// Blob media types for encoded slots.
const (
	MediaTypeColumnar = "application/x-grandr-columnar"
)

// Blob is the heavy half of an encoded slot: table containers and image
// bytes. Stored separately from the payload document so index scans never
// read them.
type Blob struct {
	Slot      string
	MediaType string
	Data      []byte
}

// payloadDoc is the light half: scalars and text inline, tables and images
// by reference.
type payloadDoc struct {
	Slots []slotDoc `json:"slots"`
}

type slotDoc struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Scalar and text are inline (storage JSON for the scalar).
	Scalar json.RawMessage `json:"scalar,omitempty"`
	Text   string          `json:"text,omitempty"`

	// Tables and images live in the blob store; the doc keeps metadata only.
	MediaType string `json:"media_type,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	Rows      int64  `json:"rows,omitempty"`
}

// Encode splits a payload into a compact document plus heavy blobs.
// Validates the payload first; an invalid payload encodes nothing.
func Encode(p *Payload) ([]byte, []Blob, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	doc := payloadDoc{Slots: make([]slotDoc, 0, p.Len())}
	var blobs []Blob

	for _, name := range p.order {
		s := p.slots[name]
		sd := slotDoc{Name: name, Kind: s.Kind}

		switch s.Kind {
		case KindScalar:
			raw, err := canon.MarshalValue(s.Scalar)
			if err != nil {
				return nil, nil, fmt.Errorf("encode payload slot %q: %w", name, err)
			}
			sd.Scalar = raw
		case KindText:
			sd.Text = s.Text
		case KindTable:
			container, err := vault.EncodeContainer(s.Table)
			if err != nil {
				return nil, nil, fmt.Errorf("encode payload slot %q: %w", name, err)
			}
			sd.MediaType = MediaTypeColumnar
			sd.Bytes = int64(len(container))
			sd.Rows = int64(s.Table.NumRows())
			blobs = append(blobs, Blob{Slot: name, MediaType: MediaTypeColumnar, Data: container})
		case KindImage:
			sd.MediaType = s.Image.MediaType
			sd.Caption = s.Image.Caption
			sd.Bytes = int64(len(s.Image.Data))
			blobs = append(blobs, Blob{Slot: name, MediaType: s.Image.MediaType, Data: s.Image.Data})
		}

		doc.Slots = append(doc.Slots, sd)
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	return docJSON, blobs, nil
}

// Decode reassembles a payload from its document and blobs.
func Decode(docJSON []byte, blobs []Blob) (*Payload, error) {
	var doc payloadDoc
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	bySlot := make(map[string]Blob, len(blobs))
	for _, b := range blobs {
		bySlot[b.Slot] = b
	}

	p := NewPayload()
	for _, sd := range doc.Slots {
		switch sd.Kind {
		case KindScalar:
			v, err := canon.UnmarshalValue(sd.Scalar)
			if err != nil {
				return nil, fmt.Errorf("decode payload slot %q: %w", sd.Name, err)
			}
			if err := p.SetScalar(sd.Name, v); err != nil {
				return nil, err
			}
		case KindText:
			if err := p.SetText(sd.Name, sd.Text); err != nil {
				return nil, err
			}
		case KindTable:
			b, ok := bySlot[sd.Name]
			if !ok {
				return nil, fmt.Errorf("decode payload slot %q: table blob missing", sd.Name)
			}
			t, err := vault.DecodeContainer(b.Data)
			if err != nil {
				return nil, fmt.Errorf("decode payload slot %q: %w", sd.Name, err)
			}
			if err := p.SetTable(sd.Name, t); err != nil {
				return nil, err
			}
		case KindImage:
			b, ok := bySlot[sd.Name]
			if !ok {
				return nil, fmt.Errorf("decode payload slot %q: image blob missing", sd.Name)
			}
			img := &Image{Data: b.Data, MediaType: sd.MediaType, Caption: sd.Caption}
			if err := p.SetImage(sd.Name, img); err != nil {
				return nil, err
			}
		default:
			return nil, &UnsupportedResultTypeError{Slot: sd.Name, Reason: fmt.Sprintf("unknown kind %q", sd.Kind)}
		}
	}
	return p, nil
}
