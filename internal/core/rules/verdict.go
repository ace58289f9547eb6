package rules

import "encoding/json"

// Verdict is the outcome of one rule applied to one value. Message is only
// set when the rule failed and its descriptor configured one.
type Verdict struct {
	Kind    Kind
	Valid   bool
	Message string
}

// MarshalJSON renders the verdict as {"<kind>": valid} plus "message" when
// present.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := map[string]any{v.Kind.String(): v.Valid}
	if v.Message != "" {
		out["message"] = v.Message
	}
	return json.Marshal(out)
}

func verdict(kind Kind, valid bool, message string) Verdict {
	if valid {
		message = ""
	}
	return Verdict{Kind: kind, Valid: valid, Message: message}
}
