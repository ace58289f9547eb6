// Package html5 maps constraint documents onto native form-control
// validation attributes and custom validity messages.
package html5

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

// Validity states of a native control that carry a custom message.
const (
	ValueMissing    = "valueMissing"
	PatternMismatch = "patternMismatch"
	RangeUnderflow  = "rangeUnderflow"
	RangeOverflow   = "rangeOverflow"
)

// messageAttributes names the data attribute each validity message is
// rendered into.
var messageAttributes = map[string]string{
	ValueMissing:    "data-err-value-missing",
	PatternMismatch: "data-err-pattern-mismatch",
	RangeUnderflow:  "data-err-range-underflow",
	RangeOverflow:   "data-err-range-overflow",
}

// Control is the declarative form of one field: attributes to set on the
// element whose id equals Key, and messages keyed by validity state.
type Control struct {
	Key        domain.FieldKey   `json:"key"`
	Attributes map[string]string `json:"attributes"`
	Messages   map[string]string `json:"messages,omitempty"`
}

// DataAttributes returns Attributes plus one data-err-* attribute per message.
func (c Control) DataAttributes() map[string]string {
	out := make(map[string]string, len(c.Attributes)+len(c.Messages))
	for k, v := range c.Attributes {
		out[k] = v
	}
	for state, msg := range c.Messages {
		out[messageAttributes[state]] = msg
	}
	return out
}

// Map converts every field of doc, sorted by key.
func Map(doc domain.Document) []Control {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	out := make([]Control, 0, len(keys))
	for _, key := range keys {
		out = append(out, MapField(domain.FieldKey(key), doc[domain.FieldKey(key)]))
	}
	return out
}

// MapField converts the constraints of one field. Kinds without a native
// counterpart are skipped. Kinds are applied in canonical order, so a later
// kind wins when two set the same attribute.
func MapField(key domain.FieldKey, constraints domain.FieldConstraints) Control {
	c := Control{Key: key, Attributes: map[string]string{}, Messages: map[string]string{}}

	kinds := make([]rules.Kind, 0, len(constraints))
	byKind := make(map[rules.Kind]domain.Descriptor, len(constraints))
	for name, d := range constraints {
		if kind, ok := rules.ParseKind(name); ok {
			kinds = append(kinds, kind)
			byKind[kind] = d
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		d := byKind[kind]
		switch kind {
		case rules.NotNull:
			c.Attributes["required"] = "required"
			c.message(ValueMissing, d)
		case rules.Size:
			if d.Max != nil && *d.Max > 0 {
				c.Attributes["maxlength"] = strconv.Itoa(*d.Max)
			}
			if d.Min != nil && *d.Min > 0 {
				c.Attributes["minlength"] = strconv.Itoa(*d.Min)
			}
		case rules.Pattern:
			if d.Regexp != "" {
				c.Attributes["pattern"] = d.Regexp
			}
			c.message(PatternMismatch, d)
		case rules.Min:
			c.bound("min", strings.TrimSpace(d.Value), RangeUnderflow, d)
		case rules.Max:
			c.bound("max", strings.TrimSpace(d.Value), RangeOverflow, d)
		case rules.DecimalMin:
			c.bound("min", integerPrefix(d.Value), RangeUnderflow, d)
		case rules.DecimalMax:
			c.bound("max", integerPrefix(d.Value), RangeOverflow, d)
		case rules.Digits:
			if d.Fraction != nil && *d.Fraction > 0 {
				c.Attributes["step"] = strconv.FormatFloat(math.Pow10(-*d.Fraction), 'f', -1, 64)
			}
		}
	}

	if len(c.Messages) == 0 {
		c.Messages = nil
	}
	return c
}

func (c *Control) bound(attr, value, state string, d domain.Descriptor) {
	if value != "" {
		c.Attributes[attr] = value
	}
	c.message(state, d)
}

func (c *Control) message(state string, d domain.Descriptor) {
	if d.Message != "" {
		c.Messages[state] = d.Message
	}
}

// integerPrefix reads the leading integer of s the way a lenient integer
// parse does: "500,00" gives "500", "-1.5" gives "-1", "abc" gives "".
func integerPrefix(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return ""
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
