package query

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// TimeLayout is the text form of times outside Go values: AsString output
// and the SQLite storage format. Fixed width, so text order is time order
// for UTC values.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout after converting it to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Validate evaluates the query against a record.
//
// The field is read from the record, the functions are applied in order,
// then the math terms, then the operator is evaluated against the value.
// Comparisons that cannot be made (incompatible types, a bad pattern, a
// sub-select value) do not match. A nil field only matches Is nil,
// IsNot <value>, the Empty marker and an empty NotIn list, like SQL with
// null-safe equality.
func (q Query) Validate(r Record) bool {
	if q.IsNull() || q.value == Undefined {
		return true
	}
	field, _ := r.Get(q.column)
	field = applyFunctions(field, q.functions)
	field, ok := applyMath(field, q.math)
	if !ok {
		return false
	}

	value := q.value
	switch v := value.(type) {
	case Marker:
		return matchMarker(q.op, v, field)
	case Selection, Compound:
		return false
	case Query:
		if v.IsNull() || v.column == "" {
			return false
		}
		other, _ := r.Get(v.column)
		value = applyFunctions(other, v.functions)
	}
	return evaluate(q.op, field, value, q.caseSensitive, q.inverted)
}

// Validate is true when all non-null children match (And) or any does (Or).
// A compound with no non-null children matches everything.
func (c Compound) Validate(r Record) bool {
	seen := false
	for _, q := range c.queries {
		if q.IsNull() {
			continue
		}
		seen = true
		ok := q.Validate(r)
		if c.op == And && !ok {
			return false
		}
		if c.op == Or && ok {
			return true
		}
	}
	return !seen || c.op == And
}

func matchMarker(op Op, m Marker, field any) bool {
	switch m {
	case All, Undefined:
		return true
	case Empty:
		switch op {
		case OpIs:
			return isEmpty(field)
		case OpIsNot:
			return !isEmpty(field)
		}
	case NotEmpty:
		switch op {
		case OpIs:
			return !isEmpty(field)
		case OpIsNot:
			return isEmpty(field)
		}
	}
	return false
}

func isEmpty(v any) bool {
	return v == nil || v == ""
}

func evaluate(op Op, field, value any, caseSensitive, inverted bool) bool {
	switch op {
	case OpIs:
		return equal(field, value)
	case OpIsNot:
		return !equal(field, value)
	case OpIsIn:
		return inList(field, value, false)
	case OpIsNotIn:
		return inList(field, value, true)
	}

	if field == nil || value == nil {
		return false
	}

	if inverted && op.Swappable() {
		field, value = value, field
	}

	switch op {
	case OpLessThan, OpBefore:
		c, ok := compareValues(field, value)
		return ok && c < 0
	case OpLessThanOrEqual:
		c, ok := compareValues(field, value)
		return ok && c <= 0
	case OpGreaterThan, OpAfter:
		c, ok := compareValues(field, value)
		return ok && c > 0
	case OpGreaterThanOrEqual:
		c, ok := compareValues(field, value)
		return ok && c >= 0
	case OpBetween:
		bounds, ok := value.([]any)
		if !ok || len(bounds) != 2 || bounds[0] == nil || bounds[1] == nil {
			return false
		}
		lo, okLo := compareValues(field, bounds[0])
		hi, okHi := compareValues(field, bounds[1])
		return okLo && okHi && lo > 0 && hi < 0
	case OpContains, OpDoesNotContain,
		OpStartsWith, OpDoesNotStartWith,
		OpEndsWith, OpDoesNotEndWith:
		return matchText(op, field, value, caseSensitive)
	case OpMatches, OpDoesNotMatch:
		s, ok1 := field.(string)
		pattern, ok2 := value.(string)
		if !ok1 || !ok2 {
			return false
		}
		re, err := CompilePattern(pattern, caseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(s) == (op == OpMatches)
	default:
		return false
	}
}

func matchText(op Op, field, value any, caseSensitive bool) bool {
	s, ok1 := field.(string)
	sub, ok2 := value.(string)
	if !ok1 || !ok2 {
		return false
	}
	if !caseSensitive {
		// Casers carry state; one per call keeps Validate goroutine-safe.
		fold := cases.Fold()
		s, sub = fold.String(s), fold.String(sub)
	}
	switch op {
	case OpContains:
		return strings.Contains(s, sub)
	case OpDoesNotContain:
		return !strings.Contains(s, sub)
	case OpStartsWith:
		return strings.HasPrefix(s, sub)
	case OpDoesNotStartWith:
		return !strings.HasPrefix(s, sub)
	case OpEndsWith:
		return strings.HasSuffix(s, sub)
	case OpDoesNotEndWith:
		return !strings.HasSuffix(s, sub)
	}
	return false
}

// CompilePattern compiles a Matches pattern. Patterns are anchored at the
// start of the text only.
func CompilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	prefix := "^(?:"
	if !caseSensitive {
		prefix = "(?i)^(?:"
	}
	return regexp.Compile(prefix + pattern + ")")
}

// inList evaluates IsIn (negate=false) and IsNotIn (negate=true) with SQL
// semantics: an empty list is never/always matched, and an unmatched nil on
// either side makes the result unknown, which does not match.
func inList(field, value any, negate bool) bool {
	list, ok := value.([]any)
	if !ok {
		return false
	}
	if len(list) == 0 {
		return negate
	}
	if field == nil {
		return false
	}
	sawNil := false
	for _, elem := range list {
		if elem == nil {
			sawNil = true
			continue
		}
		if equal(field, elem) {
			return !negate
		}
	}
	if sawNil {
		return false
	}
	return negate
}

// equal is null-safe equality: nil equals only nil.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compareValues(a, b)
	return ok && c == 0
}

// compareValues orders two values of compatible kinds: numbers (bools count
// as 0/1), strings by bytes, times as instants.
func compareValues(a, b any) (int, bool) {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return compareNumbers(x, y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case time.Duration:
		if y, ok := b.(time.Duration); ok {
			return compareNumbers(number{i: int64(x), isInt: true}, number{i: int64(y), isInt: true}), true
		}
	}
	return 0, false
}

type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int64:
		return number{i: x, isInt: true}, true
	case int:
		return number{i: int64(x), isInt: true}, true
	case int32:
		return number{i: int64(x), isInt: true}, true
	case float64:
		return number{f: x}, true
	case float32:
		return number{f: float64(x)}, true
	case bool:
		if x {
			return number{i: 1, isInt: true}, true
		}
		return number{i: 0, isInt: true}, true
	}
	return number{}, false
}

func compareNumbers(a, b number) int {
	if a.isInt && b.isInt {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	x, y := a.float(), b.float()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func applyFunctions(v any, funcs []Function) any {
	for _, f := range funcs {
		v = applyFunction(v, f)
	}
	return v
}

func applyFunction(v any, f Function) any {
	switch f {
	case FuncLower:
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
	case FuncUpper:
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
	case FuncAbs:
		switch x := v.(type) {
		case int64:
			if x < 0 {
				return -x
			}
		case float64:
			return math.Abs(x)
		}
	case FuncAsString:
		return asString(v)
	}
	return v
}

// asString renders v the way SQLite's CAST(v AS TEXT) does for the value
// kinds records hold.
func asString(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'g', 15, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return FormatTime(x)
	}
	return v
}

// applyMath applies the math terms in order. It reports false when a term
// cannot be applied. Division by zero yields nil, as in SQL.
func applyMath(v any, terms []MathTerm) (any, bool) {
	for _, term := range terms {
		if v == nil {
			return nil, true
		}
		a, ok := toNumber(v)
		if !ok {
			return nil, false
		}
		b, ok := toNumber(term.Value)
		if !ok {
			return nil, false
		}
		v, ok = arithmetic(term.Op, a, b)
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func arithmetic(op MathOp, a, b number) (any, bool) {
	if a.isInt && b.isInt {
		switch op {
		case MathAdd:
			return a.i + b.i, true
		case MathSubtract:
			return a.i - b.i, true
		case MathMultiply:
			return a.i * b.i, true
		case MathDivide:
			if b.i == 0 {
				return nil, true
			}
			return a.i / b.i, true
		case MathAnd:
			return a.i & b.i, true
		case MathOr:
			return a.i | b.i, true
		}
		return nil, false
	}

	x, y := a.float(), b.float()
	switch op {
	case MathAdd:
		return x + y, true
	case MathSubtract:
		return x - y, true
	case MathMultiply:
		return x * y, true
	case MathDivide:
		if y == 0 {
			return nil, true
		}
		return x / y, true
	}
	return nil, false
}
