package binding

import (
	"encoding/json"

	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

// State is the outcome of one evaluation of a field.
type State struct {
	Rules    map[rules.Kind]bool
	Messages []string
}

// Valid is the conjunction of all rule results. A field without rules is valid.
func (s State) Valid() bool {
	for _, ok := range s.Rules {
		if !ok {
			return false
		}
	}
	return true
}

func (s State) MarshalJSON() ([]byte, error) {
	ruleMap := s.Rules
	if ruleMap == nil {
		ruleMap = map[rules.Kind]bool{}
	}
	messages := s.Messages
	if messages == nil {
		messages = []string{}
	}
	return json.Marshal(struct {
		Valid    bool                `json:"valid"`
		Rules    map[rules.Kind]bool `json:"rules"`
		Messages []string            `json:"messages"`
	}{s.Valid(), ruleMap, messages})
}

// Orchestrator runs bound validators and aggregates their verdicts.
type Orchestrator struct {
	rules *rules.RuleSet
}

func NewOrchestrator(rs *rules.RuleSet) *Orchestrator {
	if rs == nil {
		rs = rules.New()
	}
	return &Orchestrator{rules: rs}
}

// Evaluate builds a fresh State: nothing from a previous run survives, so a
// rule that now passes leaves no stale message behind.
func (o *Orchestrator) Evaluate(validators []BoundValidator, value any) State {
	state := State{Rules: make(map[rules.Kind]bool, len(validators))}
	for _, v := range validators {
		verdict := o.rules.Evaluate(v.Kind, value, v.Descriptor)
		state.Rules[verdict.Kind] = verdict.Valid
		if !verdict.Valid && verdict.Message != "" {
			state.Messages = append(state.Messages, verdict.Message)
		}
	}
	return state
}
