package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FieldKey identifies a field inside a constraint document.
type FieldKey string

// Document maps field keys to the constraints declared for them. It is
// read-only once parsed and may be shared between any number of bindings.
type Document map[FieldKey]FieldConstraints

// FieldConstraints maps a constraint-kind name to its descriptor. Names are
// kept as written so that kinds this module does not know survive a round trip.
type FieldConstraints map[string]Descriptor

// kindNames are the constraint kinds with a known descriptor shape. Entries
// under any other name are carried opaquely and never fail a decode.
var kindNames = []string{
	"assertFalse", "assertTrue", "decimalMax", "decimalMin", "digits", "future",
	"max", "min", "notNull", "null", "past", "pattern", "size",
}

// KindNames lists the constraint kinds whose descriptors are decoded strictly.
func KindNames() []string {
	return append([]string(nil), kindNames...)
}

func knownKind(name string) bool {
	for _, k := range kindNames {
		if k == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes known kinds strictly. Unknown kinds keep their raw
// JSON in Descriptor.Opaque whatever its shape.
func (fc *FieldConstraints) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*fc = nil
		return nil
	}
	out := make(FieldConstraints, len(raw))
	for name, body := range raw {
		if !knownKind(name) {
			out[name] = Descriptor{Opaque: body}
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(body, &d); err != nil {
			return fmt.Errorf("constraint %s: %w", name, err)
		}
		out[name] = d
	}
	*fc = out
	return nil
}

// Descriptor holds the parameters of one constraint. Which fields are set
// depends on the constraint kind.
type Descriptor struct {
	Value     string   `json:"value,omitempty"`
	Inclusive *bool    `json:"inclusive,omitempty"`
	Integer   *int     `json:"integer,omitempty"`
	Fraction  *int     `json:"fraction,omitempty"`
	Min       *int     `json:"min,omitempty"`
	Max       *int     `json:"max,omitempty"`
	Regexp    string   `json:"regexp,omitempty"`
	Flags     []string `json:"flags,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Payload   []string `json:"payload,omitempty"`
	Message   string   `json:"message,omitempty"`

	// Opaque holds the raw entry of a kind this module does not interpret.
	Opaque json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts "value" written either as a JSON string or a number;
// the generator emits strings for decimal bounds and numbers for integer ones.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor
	var aux struct {
		plain
		Value json.RawMessage `json:"value,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	value, err := scalarText(aux.Value)
	if err != nil {
		return err
	}
	*d = Descriptor(aux.plain)
	d.Value = value
	return nil
}

// InclusiveOrDefault reports whether a decimal bound includes its value.
// Bounds are inclusive unless the document says otherwise.
func (d Descriptor) InclusiveOrDefault() bool {
	if d.Inclusive == nil {
		return true
	}
	return *d.Inclusive
}

func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.New("descriptor value must be a string or a number")
	}
	return n.String(), nil
}

// ParseDocument decodes a constraint document. A JSON null decodes to an empty
// document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode constraint document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Lookup returns the constraints declared for key. A missing key is not an
// error: the field simply has nothing to check.
func (d Document) Lookup(key FieldKey) (FieldConstraints, bool) {
	fc, ok := d[key]
	return fc, ok
}
