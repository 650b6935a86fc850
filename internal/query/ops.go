package query

import "fmt"

// Op is a comparison operator. The zero value is OpUnset, which only the
// null query carries.
type Op int

const (
	OpUnset Op = iota
	OpIs
	OpIsNot
	OpLessThan
	OpLessThanOrEqual
	OpBefore
	OpGreaterThan
	OpGreaterThanOrEqual
	OpAfter
	OpBetween
	OpContains
	OpDoesNotContain
	OpStartsWith
	OpDoesNotStartWith
	OpEndsWith
	OpDoesNotEndWith
	OpMatches
	OpDoesNotMatch
	OpIsIn
	OpIsNotIn
)

var opNames = [...]string{
	OpUnset:              "",
	OpIs:                 "Is",
	OpIsNot:              "IsNot",
	OpLessThan:           "LessThan",
	OpLessThanOrEqual:    "LessThanOrEqual",
	OpBefore:             "Before",
	OpGreaterThan:        "GreaterThan",
	OpGreaterThanOrEqual: "GreaterThanOrEqual",
	OpAfter:              "After",
	OpBetween:            "Between",
	OpContains:           "Contains",
	OpDoesNotContain:     "DoesNotContain",
	OpStartsWith:         "Startswith",
	OpDoesNotStartWith:   "DoesNotStartwith",
	OpEndsWith:           "Endswith",
	OpDoesNotEndWith:     "DoesNotEndwith",
	OpMatches:            "Matches",
	OpDoesNotMatch:       "DoesNotMatch",
	OpIsIn:               "IsIn",
	OpIsNotIn:            "IsNotIn",
}

// String returns the wire name of the operator.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// ParseOp converts a wire name back to an Op. The empty string parses as
// OpUnset.
func ParseOp(name string) (Op, error) {
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return OpUnset, fmt.Errorf("unknown operator %q", name)
}

// Negate returns the operator's negation partner. Every pair is an
// involution; Between has no partner and maps to itself.
func (o Op) Negate() Op {
	switch o {
	case OpIs:
		return OpIsNot
	case OpIsNot:
		return OpIs
	case OpLessThan:
		return OpGreaterThanOrEqual
	case OpGreaterThanOrEqual:
		return OpLessThan
	case OpLessThanOrEqual:
		return OpGreaterThan
	case OpGreaterThan:
		return OpLessThanOrEqual
	case OpBefore:
		return OpAfter
	case OpAfter:
		return OpBefore
	case OpContains:
		return OpDoesNotContain
	case OpDoesNotContain:
		return OpContains
	case OpStartsWith:
		return OpDoesNotStartWith
	case OpDoesNotStartWith:
		return OpStartsWith
	case OpEndsWith:
		return OpDoesNotEndWith
	case OpDoesNotEndWith:
		return OpEndsWith
	case OpMatches:
		return OpDoesNotMatch
	case OpDoesNotMatch:
		return OpMatches
	case OpIsIn:
		return OpIsNotIn
	case OpIsNotIn:
		return OpIsIn
	default:
		return o
	}
}

// Swappable reports whether the inverted flag changes the operator's
// meaning. For these operators inversion swaps the operands, so an
// inverted LessThan reads "value < field".
func (o Op) Swappable() bool {
	switch o {
	case OpIs, OpIsNot,
		OpLessThan, OpLessThanOrEqual, OpBefore,
		OpGreaterThan, OpGreaterThanOrEqual, OpAfter,
		OpContains, OpDoesNotContain,
		OpStartsWith, OpDoesNotStartWith,
		OpEndsWith, OpDoesNotEndWith:
		return true
	default:
		return false
	}
}

// IsStringOp reports whether the operator compares text and honours the
// case-sensitivity flag.
func (o Op) IsStringOp() bool {
	switch o {
	case OpContains, OpDoesNotContain,
		OpStartsWith, OpDoesNotStartWith,
		OpEndsWith, OpDoesNotEndWith,
		OpMatches, OpDoesNotMatch:
		return true
	default:
		return false
	}
}

// MathOp is an arithmetic or bitwise operator layered onto a query's field.
type MathOp int

const (
	MathAdd MathOp = iota + 1
	MathSubtract
	MathMultiply
	MathDivide
	MathAnd
	MathOr
)

var mathNames = [...]string{
	MathAdd:      "Add",
	MathSubtract: "Subtract",
	MathMultiply: "Multiply",
	MathDivide:   "Divide",
	MathAnd:      "And",
	MathOr:       "Or",
}

var mathSymbols = [...]string{
	MathAdd:      "+",
	MathSubtract: "-",
	MathMultiply: "*",
	MathDivide:   "/",
	MathAnd:      "&",
	MathOr:       "|",
}

func (m MathOp) String() string {
	if m <= 0 || int(m) >= len(mathNames) {
		return fmt.Sprintf("MathOp(%d)", int(m))
	}
	return mathNames[m]
}

// Symbol returns a display symbol. Not stable; do not parse it.
func (m MathOp) Symbol() string {
	if m <= 0 || int(m) >= len(mathSymbols) {
		return "?"
	}
	return mathSymbols[m]
}

// ParseMathOp converts a wire name to a MathOp.
func ParseMathOp(name string) (MathOp, error) {
	for i, n := range mathNames {
		if i > 0 && n == name {
			return MathOp(i), nil
		}
	}
	return 0, fmt.Errorf("unknown math operator %q", name)
}

// Function is a unary transform applied to the field before comparison.
type Function int

const (
	FuncLower Function = iota + 1
	FuncUpper
	FuncAbs
	FuncAsString
)

var funcNames = [...]string{
	FuncLower:    "Lower",
	FuncUpper:    "Upper",
	FuncAbs:      "Abs",
	FuncAsString: "AsString",
}

func (f Function) String() string {
	if f <= 0 || int(f) >= len(funcNames) {
		return fmt.Sprintf("Function(%d)", int(f))
	}
	return funcNames[f]
}

// ParseFunction converts a wire name to a Function.
func ParseFunction(name string) (Function, error) {
	for i, n := range funcNames {
		if i > 0 && n == name {
			return Function(i), nil
		}
	}
	return 0, fmt.Errorf("unknown function %q", name)
}

// CompoundOp is the boolean grouping of a Compound.
type CompoundOp int

const (
	And CompoundOp = iota + 1
	Or
)

func (c CompoundOp) String() string {
	switch c {
	case And:
		return "And"
	case Or:
		return "Or"
	default:
		return fmt.Sprintf("CompoundOp(%d)", int(c))
	}
}

// Flip swaps And and Or.
func (c CompoundOp) Flip() CompoundOp {
	if c == And {
		return Or
	}
	return And
}

// ParseCompoundOp converts a wire name to a CompoundOp.
func ParseCompoundOp(name string) (CompoundOp, error) {
	switch name {
	case "And":
		return And, nil
	case "Or":
		return Or, nil
	default:
		return 0, fmt.Errorf("unknown compound operator %q", name)
	}
}

// Marker is a special query value.
type Marker string

const (
	// Undefined marks a query that has not been given a comparison value.
	Undefined Marker = "__QUERY__UNDEFINED__"

	// NotEmpty matches any value other than null or "".
	NotEmpty Marker = "__QUERY__NOT_EMPTY__"

	// Empty matches null or "".
	Empty Marker = "__QUERY__EMPTY__"

	// All matches every record.
	All Marker = "__QUERY__ALL__"
)

// parseMarker reports whether s is the wire form of a marker.
func parseMarker(s string) (Marker, bool) {
	switch m := Marker(s); m {
	case Undefined, NotEmpty, Empty, All:
		return m, true
	default:
		return "", false
	}
}
