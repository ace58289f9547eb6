package binding

import (
	"reflect"
	"sync"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

// Outcome is the result of a value commit. A rejected value is withheld: the
// field's model keeps the last accepted value.
type Outcome struct {
	Accepted bool  `json:"accepted"`
	Value    any   `json:"value"`
	State    State `json:"state"`
}

// Snapshot is a read-only view of a field.
type Snapshot struct {
	Key         domain.FieldKey `json:"key"`
	Bound       bool            `json:"bound"`
	Rules       []string        `json:"bound_rules"`
	View        any             `json:"view_value"`
	Value       any             `json:"model_value"`
	State       State           `json:"state"`
	Evaluations int             `json:"evaluations"`
}

// Field owns the validity state of one form control.
type Field struct {
	key  domain.FieldKey
	orch *Orchestrator

	mu          sync.Mutex
	bound       bool
	validators  []BoundValidator
	triggers    bool
	committed   bool
	view        any
	model       any
	state       State
	evaluations int
	cancel      func()
}

func newField(key domain.FieldKey, orch *Orchestrator) *Field {
	return &Field{key: key, orch: orch}
}

func (f *Field) Key() domain.FieldKey { return f.key }

// bind installs validators once. Presence-sensitive fields also listen on
// force so they are re-evaluated without a value change. A value committed
// before bind was accepted provisionally and is checked again here.
func (f *Field) bind(validators []BoundValidator, force *Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound {
		return
	}
	f.bound = true
	f.validators = validators
	f.triggers = presenceSensitive(validators)
	if f.triggers && force != nil {
		f.cancel = force.Subscribe(func() { f.Revalidate() })
	}
	if f.committed {
		f.model = nil
		f.evaluateLocked()
	}
}

// Commit offers a new value. Unchanged values are not re-evaluated; use Blur
// or a form-wide ForceValidate for that.
func (f *Field) Commit(value any) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.committed && reflect.DeepEqual(value, f.view) {
		return f.outcomeLocked()
	}
	f.view = value
	f.committed = true
	return f.evaluateLocked()
}

// Blur reports loss of focus.
func (f *Field) Blur() Outcome {
	return f.Revalidate()
}

// Revalidate re-runs the rules against the current value when the field has
// a presence-sensitive rule. Other fields return their last outcome.
func (f *Field) Revalidate() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.triggers {
		return f.outcomeLocked()
	}
	return f.evaluateLocked()
}

func (f *Field) evaluateLocked() Outcome {
	f.state = f.orch.Evaluate(f.validators, f.view)
	f.evaluations++
	accepted := f.state.Valid()
	if accepted {
		f.model = f.view
	}
	return Outcome{Accepted: accepted, Value: f.model, State: f.state}
}

func (f *Field) outcomeLocked() Outcome {
	return Outcome{Accepted: f.state.Valid(), Value: f.model, State: f.state}
}

func (f *Field) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Field) Valid() bool {
	return f.State().Valid()
}

// Evaluations counts how often the rules ran for this field.
func (f *Field) Evaluations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluations
}

func (f *Field) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.validators))
	for _, v := range f.validators {
		names = append(names, v.Kind.String())
	}
	return Snapshot{
		Key:         f.key,
		Bound:       f.bound,
		Rules:       names,
		View:        f.view,
		Value:       f.model,
		State:       f.state,
		Evaluations: f.evaluations,
	}
}

func (f *Field) release() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
