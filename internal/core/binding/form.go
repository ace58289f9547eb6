package binding

import (
	"sync"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

// FieldSpec describes a form control. Key is the explicit constraint
// annotation; Model is the data-binding identifier used when Key is empty.
type FieldSpec struct {
	Key   string `json:"key,omitempty"`
	Model string `json:"model,omitempty"`
}

// Form groups fields that share one constraint document and one
// force-validate signal.
type Form struct {
	orch  *Orchestrator
	force Signal

	mu       sync.Mutex
	fields   map[domain.FieldKey]*Field
	order    []domain.FieldKey
	doc      domain.Document
	attached bool
}

func NewForm(rs *rules.RuleSet) *Form {
	return &Form{
		orch:   NewOrchestrator(rs),
		fields: make(map[domain.FieldKey]*Field),
	}
}

// Field returns the field for spec, creating it on first use. Fields created
// after Attach are bound right away; earlier ones wait for Attach.
func (f *Form) Field(spec FieldSpec) (*Field, error) {
	key := ResolveKey(spec.Key, spec.Model)
	if err := domain.ValidateFieldKey(key); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if field, ok := f.fields[key]; ok {
		return field, nil
	}
	field := newField(key, f.orch)
	f.fields[key] = field
	f.order = append(f.order, key)
	if f.attached {
		field.bind(Bind(key, f.doc), &f.force)
	}
	return field, nil
}

// Lookup returns an existing field without creating one.
func (f *Form) Lookup(key domain.FieldKey) (*Field, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, ok := f.fields[key]
	return field, ok
}

// Attach binds all fields to doc. Only the first call has an effect; it is
// meant to be registered as a ConstraintStore continuation.
func (f *Form) Attach(doc domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached {
		return
	}
	f.attached = true
	f.doc = doc
	for _, key := range f.order {
		f.fields[key].bind(Bind(key, doc), &f.force)
	}
}

// ForceValidate broadcasts the force-validate signal, typically on submit,
// and reports whether every field is valid afterwards.
func (f *Form) ForceValidate() bool {
	f.force.Broadcast()
	return f.Valid()
}

func (f *Form) Valid() bool {
	for _, field := range f.snapshotFields() {
		if !field.Valid() {
			return false
		}
	}
	return true
}

// Snapshot returns every field in creation order.
func (f *Form) Snapshot() []Snapshot {
	fields := f.snapshotFields()
	out := make([]Snapshot, 0, len(fields))
	for _, field := range fields {
		out = append(out, field.Snapshot())
	}
	return out
}

// Close detaches all fields from the force-validate signal.
func (f *Form) Close() {
	for _, field := range f.snapshotFields() {
		field.release()
	}
}

func (f *Form) snapshotFields() []*Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Field, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, f.fields[key])
	}
	return out
}
