package rules

import "fmt"

// Kind is a constraint kind understood by the rule set. The set is closed:
// document entries naming anything else are skipped when fields are bound.
type Kind uint8

const (
	AssertFalse Kind = iota + 1
	AssertTrue
	DecimalMax
	DecimalMin
	Digits
	Future
	Max
	Min
	NotNull
	Null
	Past
	Pattern
	Size
)

var kindNames = [...]string{
	AssertFalse: "assertFalse",
	AssertTrue:  "assertTrue",
	DecimalMax:  "decimalMax",
	DecimalMin:  "decimalMin",
	Digits:      "digits",
	Future:      "future",
	Max:         "max",
	Min:         "min",
	NotNull:     "notNull",
	Null:        "null",
	Past:        "past",
	Pattern:     "pattern",
	Size:        "size",
}

// Kinds lists every known kind in canonical order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := AssertFalse; k <= Size; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind maps a document name such as "decimalMin" to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k := AssertFalse; k <= Size; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

func (k Kind) Valid() bool {
	return k >= AssertFalse && k <= Size
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown constraint kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// PresenceSensitive reports whether a rule can fail for a value that was never
// typed in. Fields carrying such a rule are re-evaluated on blur and on a
// force-validate broadcast because no change event would reach them.
func (k Kind) PresenceSensitive() bool {
	return k == NotNull
}
