package usecase

import (
	"context"
	"sort"

	"github.com/atvirokodosprendimai/beanval/internal/core/binding"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

// CheckReport is the outcome of validating one set of values offline.
type CheckReport struct {
	Valid  bool               `json:"valid"`
	Fields []binding.Snapshot `json:"fields"`
}

// CheckValues validates values against the document held by store, the way a
// submitted form would be: every value is committed, then a force-validate
// runs so required fields missing from values are reported too.
//
// Nested maps in values are flattened into dotted keys unless the document
// has a key for the map itself.
func CheckValues(ctx context.Context, store *ConstraintStore, rs *rules.RuleSet, values map[string]any) (CheckReport, error) {
	doc, err := store.Await(ctx)
	if err != nil {
		return CheckReport{}, err
	}

	flat := make(map[domain.FieldKey]any)
	flatten(doc, "", values, flat)

	keys := make([]string, 0, len(doc)+len(flat))
	seen := make(map[domain.FieldKey]bool)
	for key := range doc {
		keys = append(keys, string(key))
		seen[key] = true
	}
	for key := range flat {
		if !seen[key] {
			keys = append(keys, string(key))
		}
	}
	sort.Strings(keys)

	form := binding.NewForm(rs)
	defer form.Close()
	form.Attach(doc)
	for _, key := range keys {
		field, err := form.Field(binding.FieldSpec{Key: key})
		if err != nil {
			return CheckReport{}, err
		}
		if v, ok := flat[domain.FieldKey(key)]; ok {
			field.Commit(v)
		}
	}
	valid := form.ForceValidate()
	return CheckReport{Valid: valid, Fields: form.Snapshot()}, nil
}

func flatten(doc domain.Document, prefix string, values map[string]any, out map[domain.FieldKey]any) {
	for name, v := range values {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if _, bound := doc[domain.FieldKey(key)]; !bound {
			if nested, ok := v.(map[string]any); ok {
				flatten(doc, key, nested, out)
				continue
			}
		}
		out[domain.FieldKey(key)] = v
	}
}
