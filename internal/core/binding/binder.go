// Package binding attaches constraint rules to form fields and keeps their
// validity state. A Form is created before its constraint document is known;
// Attach binds every field once the document arrives.
package binding

import (
	"sort"
	"strings"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

// BoundValidator is one rule resolved for one field.
type BoundValidator struct {
	Kind       rules.Kind
	Descriptor domain.Descriptor
}

// ResolveKey picks the document key for a field: an explicit annotation wins
// over the field's data-binding identifier.
func ResolveKey(explicit, model string) domain.FieldKey {
	if k := strings.TrimSpace(explicit); k != "" {
		return domain.FieldKey(k)
	}
	return domain.FieldKey(strings.TrimSpace(model))
}

// Bind resolves the validators a field gets from doc. Kinds the rule set does
// not know are skipped; a key missing from doc yields no validators.
func Bind(key domain.FieldKey, doc domain.Document) []BoundValidator {
	constraints, ok := doc.Lookup(key)
	if !ok {
		return nil
	}
	out := make([]BoundValidator, 0, len(constraints))
	for name, d := range constraints {
		kind, known := rules.ParseKind(name)
		if !known {
			continue
		}
		out = append(out, BoundValidator{Kind: kind, Descriptor: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func presenceSensitive(validators []BoundValidator) bool {
	for _, v := range validators {
		if v.Kind.PresenceSensitive() {
			return true
		}
	}
	return false
}
