package rules

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func fixedRuleSet() *RuleSet {
	return New(WithClock(func() time.Time {
		return time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)
	}))
}

func TestAbsentValueIsValidForEveryKind(t *testing.T) {
	rs := fixedRuleSet()
	d := domain.Descriptor{
		Value:   "5",
		Integer: intPtr(3), Fraction: intPtr(2),
		Min: intPtr(3), Max: intPtr(10),
		Regexp: "[a-z]+",
	}
	for _, kind := range Kinds() {
		if kind == NotNull {
			continue
		}
		for _, value := range []any{nil, ""} {
			if got := rs.Evaluate(kind, value, d); !got.Valid {
				t.Fatalf("%s with %#v: expected valid", kind, value)
			}
		}
	}
	if rs.Evaluate(NotNull, nil, d).Valid {
		t.Fatal("notNull must reject a missing value")
	}
}

func TestEvaluateTable(t *testing.T) {
	rs := fixedRuleSet()
	tests := []struct {
		name  string
		kind  Kind
		value any
		desc  domain.Descriptor
		want  bool
	}{
		{"assertTrue true", AssertTrue, true, domain.Descriptor{}, true},
		{"assertTrue false", AssertTrue, false, domain.Descriptor{}, false},
		{"assertTrue string is not strict true", AssertTrue, "true", domain.Descriptor{}, false},
		{"assertFalse false", AssertFalse, false, domain.Descriptor{}, true},
		{"assertFalse true", AssertFalse, true, domain.Descriptor{}, false},
		{"notNull text", NotNull, "x", domain.Descriptor{}, true},
		{"notNull false", NotNull, false, domain.Descriptor{}, false},
		{"notNull zero", NotNull, 0, domain.Descriptor{}, false},
		{"notNull empty list is present", NotNull, []any{}, domain.Descriptor{}, true},
		{"null empty", Null, "", domain.Descriptor{}, true},
		{"null text", Null, "x", domain.Descriptor{}, false},

		{"min equal", Min, "5", domain.Descriptor{Value: "5"}, true},
		{"min below", Min, "4", domain.Descriptor{Value: "5"}, false},
		{"min number", Min, 7.0, domain.Descriptor{Value: "5"}, true},
		{"min integer part", Min, "5.9", domain.Descriptor{Value: "6"}, false},
		{"min not numeric", Min, "abc", domain.Descriptor{Value: "5"}, false},
		{"max equal", Max, "5", domain.Descriptor{Value: "5"}, true},
		{"max above", Max, "6", domain.Descriptor{Value: "5"}, false},
		{"max negative", Max, "-12", domain.Descriptor{Value: "5"}, true},

		{"decimalMin inclusive default", DecimalMin, "5.0", domain.Descriptor{Value: "5"}, true},
		{"decimalMin exclusive equal", DecimalMin, "5.0", domain.Descriptor{Value: "5", Inclusive: boolPtr(false)}, false},
		{"decimalMin exclusive above", DecimalMin, "5.1", domain.Descriptor{Value: "5", Inclusive: boolPtr(false)}, true},
		{"decimalMin below", DecimalMin, "4.99", domain.Descriptor{Value: "5"}, false},
		{"decimalMin decimal comma bound", DecimalMin, "500", domain.Descriptor{Value: "500,00"}, true},
		{"decimalMax inclusive", DecimalMax, "5000", domain.Descriptor{Value: "5000,00"}, true},
		{"decimalMax exclusive", DecimalMax, "5000", domain.Descriptor{Value: "5000,00", Inclusive: boolPtr(false)}, false},
		{"decimalMax above", DecimalMax, 5000.01, domain.Descriptor{Value: "5000"}, false},
		{"decimalMax not numeric", DecimalMax, "1/2", domain.Descriptor{Value: "5"}, false},

		{"digits fits", Digits, "123.45", domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(2)}, true},
		{"digits integer overflow", Digits, "1234.45", domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(2)}, false},
		{"digits fraction overflow", Digits, "123.456", domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(2)}, false},
		{"digits number", Digits, 12.5, domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(2)}, true},
		{"digits zero fraction", Digits, "12.5", domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(0)}, false},
		{"digits text", Digits, "abc", domain.Descriptor{Integer: intPtr(3), Fraction: intPtr(2)}, false},

		{"future tomorrow", Future, "2026-10-16", domain.Descriptor{}, true},
		{"future later today", Future, "2026-10-15T23:00:00Z", domain.Descriptor{}, false},
		{"future yesterday", Future, "2026-10-14", domain.Descriptor{}, false},
		{"future unparseable", Future, "someday", domain.Descriptor{}, false},
		{"past yesterday", Past, "2026-10-14", domain.Descriptor{}, true},
		{"past earlier today", Past, "2026-10-15T00:01:00Z", domain.Descriptor{}, false},
		{"past time value", Past, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), domain.Descriptor{}, true},

		{"pattern trimmed", Pattern, " abc ", domain.Descriptor{Regexp: "[a-z]+"}, true},
		{"pattern anchored", Pattern, "abc1", domain.Descriptor{Regexp: "[a-z]+"}, false},
		{"pattern alternation anchored", Pattern, "ab", domain.Descriptor{Regexp: "a|ab"}, true},
		{"pattern bad regexp", Pattern, "abc", domain.Descriptor{Regexp: "(["}, false},

		{"size within", Size, "hello", domain.Descriptor{Min: intPtr(3), Max: intPtr(10)}, true},
		{"size too long", Size, "hello", domain.Descriptor{Min: intPtr(3), Max: intPtr(4)}, false},
		{"size trims", Size, "  ab  ", domain.Descriptor{Min: intPtr(3)}, false},
		{"size list", Size, []any{1, 2}, domain.Descriptor{Max: intPtr(1)}, false},
		{"size map", Size, map[string]any{"a": 1}, domain.Descriptor{Min: intPtr(1)}, true},
		{"size counts runes", Size, "äöü", domain.Descriptor{Max: intPtr(3)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := rs.Evaluate(tc.kind, tc.value, tc.desc)
			if got.Kind != tc.kind {
				t.Fatalf("verdict kind = %s, want %s", got.Kind, tc.kind)
			}
			if got.Valid != tc.want {
				t.Fatalf("valid = %v, want %v", got.Valid, tc.want)
			}
		})
	}
}

func TestMessageOnlyOnFailure(t *testing.T) {
	rs := fixedRuleSet()
	d := domain.Descriptor{Value: "5", Message: "too small"}

	pass := rs.Evaluate(Min, "6", d)
	if pass.Message != "" {
		t.Fatalf("passing verdict carries message %q", pass.Message)
	}
	fail := rs.Evaluate(Min, "4", d)
	if fail.Message != "too small" {
		t.Fatalf("failing verdict message = %q", fail.Message)
	}
	if got := rs.Evaluate(Min, "4", domain.Descriptor{Value: "5"}); got.Message != "" {
		t.Fatalf("unconfigured message leaked: %q", got.Message)
	}
}

func TestAssertTrueVerdictKeyedByOwnKind(t *testing.T) {
	got, err := json.Marshal(fixedRuleSet().Evaluate(AssertTrue, false, domain.Descriptor{Message: "must be true"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"assertTrue": false, "message": "must be true"}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Fatalf("verdict json mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, ok := ParseKind(kind.String())
		if !ok || parsed != kind {
			t.Fatalf("round trip of %s failed", kind)
		}
	}
	if _, ok := ParseKind("email"); ok {
		t.Fatal("unknown kinds must not parse")
	}
	if !NotNull.PresenceSensitive() || Size.PresenceSensitive() {
		t.Fatal("only notNull is presence sensitive")
	}
}

func TestKindsMatchStrictlyDecodedNames(t *testing.T) {
	var names []string
	for _, kind := range Kinds() {
		names = append(names, kind.String())
	}
	if diff := cmp.Diff(domain.KindNames(), names); diff != "" {
		t.Fatalf("kind names drifted (-domain +rules):\n%s", diff)
	}
}
