// Package rules evaluates bean-validation constraint kinds against form
// values. Evaluation never fails: malformed values and malformed descriptors
// both yield an invalid verdict.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

// RuleSet maps a Kind to its evaluator. It holds no per-evaluation state; the
// regexp cache only memoizes compilation.
type RuleSet struct {
	now      func() time.Time
	patterns sync.Map // source -> compiledPattern
}

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

type Option func(*RuleSet)

// WithClock sets the clock that "today" is taken from for future and past.
// The clock's location is the calendar the dates are truncated in.
func WithClock(now func() time.Time) Option {
	return func(r *RuleSet) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *RuleSet {
	r := &RuleSet{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate applies kind to value using the parameters in d.
func (r *RuleSet) Evaluate(kind Kind, value any, d domain.Descriptor) Verdict {
	switch kind {
	case AssertFalse:
		return verdict(kind, absent(value) || value == false, d.Message)
	case AssertTrue:
		return verdict(kind, absent(value) || value == true, d.Message)
	case NotNull:
		return verdict(kind, truthy(value), d.Message)
	case Null:
		return verdict(kind, !truthy(value), d.Message)
	case Min:
		return verdict(kind, absent(value) || compareInteger(value, d.Value, func(c int) bool { return c >= 0 }), d.Message)
	case Max:
		return verdict(kind, absent(value) || compareInteger(value, d.Value, func(c int) bool { return c <= 0 }), d.Message)
	case DecimalMin:
		return verdict(kind, absent(value) || compareDecimal(value, d, func(c int) bool { return c > 0 }), d.Message)
	case DecimalMax:
		return verdict(kind, absent(value) || compareDecimal(value, d, func(c int) bool { return c < 0 }), d.Message)
	case Digits:
		return verdict(kind, absent(value) || r.digits(value, d), d.Message)
	case Future:
		return verdict(kind, absent(value) || r.relativeToToday(value, func(v, today time.Time) bool { return v.After(today) }), d.Message)
	case Past:
		return verdict(kind, absent(value) || r.relativeToToday(value, func(v, today time.Time) bool { return v.Before(today) }), d.Message)
	case Pattern:
		return verdict(kind, absent(value) || r.pattern(value, d), d.Message)
	case Size:
		return verdict(kind, absent(value) || size(value, d), d.Message)
	}
	return verdict(kind, true, "")
}

// compareInteger compares the integer parts of value and bound.
func compareInteger(value any, bound string, ok func(int) bool) bool {
	v, isNum := numeric(value)
	if !isNum {
		return false
	}
	b, isNum := parseBound(bound)
	if !isNum {
		return false
	}
	return ok(integerPart(v).Cmp(integerPart(b)))
}

// compareDecimal checks value against d.Value. strict receives the comparison
// result and decides the exclusive case; an inclusive bound also accepts 0.
func compareDecimal(value any, d domain.Descriptor, strict func(int) bool) bool {
	v, isNum := numeric(value)
	if !isNum {
		return false
	}
	b, isNum := parseBound(d.Value)
	if !isNum {
		return false
	}
	c := v.Cmp(b)
	if c == 0 {
		return d.InclusiveOrDefault()
	}
	return strict(c)
}

func (r *RuleSet) digits(value any, d domain.Descriptor) bool {
	s, ok := text(value)
	if !ok {
		return false
	}
	re, err := r.compile(digitsExpr(d))
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func digitsExpr(d domain.Descriptor) string {
	integer := `\d+`
	if d.Integer != nil {
		integer = fmt.Sprintf(`\d{1,%d}`, max(*d.Integer, 1))
	}
	fraction := `(\.\d+)?`
	if d.Fraction != nil {
		fraction = ""
		if *d.Fraction > 0 {
			fraction = fmt.Sprintf(`(\.\d{1,%d})?`, *d.Fraction)
		}
	}
	return `^` + integer + fraction + `$`
}

func (r *RuleSet) relativeToToday(value any, ok func(v, today time.Time) bool) bool {
	now := r.now()
	t, parsed := date(value, now.Location())
	if !parsed {
		return false
	}
	return ok(midnight(t), midnight(now))
}

func (r *RuleSet) pattern(value any, d domain.Descriptor) bool {
	s, ok := text(value)
	if !ok {
		return false
	}
	re, err := r.compile(`^(?:` + d.Regexp + `)$`)
	if err != nil {
		return false
	}
	return re.MatchString(strings.TrimSpace(s))
}

func (r *RuleSet) compile(expr string) (*regexp.Regexp, error) {
	if cached, ok := r.patterns.Load(expr); ok {
		cp := cached.(compiledPattern)
		return cp.re, cp.err
	}
	re, err := regexp.Compile(expr)
	r.patterns.Store(expr, compiledPattern{re: re, err: err})
	return re, err
}

func size(value any, d domain.Descriptor) bool {
	n, ok := length(value)
	if !ok {
		return false
	}
	if d.Min != nil && n < *d.Min {
		return false
	}
	if d.Max != nil && n > *d.Max {
		return false
	}
	return true
}
