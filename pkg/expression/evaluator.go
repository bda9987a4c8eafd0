// Package expression evaluates the restricted comparison language used to gate actions.
//
// Expressions are parsed into a small AST and interpreted; nothing is ever compiled or
// executed. Input outside the grammar evaluates to false.
package expression

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// Evaluator evaluates expressions and logs the ones that fail closed.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{logger: logger.With("module", "expression")}
}

// Evaluate parses and evaluates expr against data using the default logger.
func Evaluate(expr string, data map[string]any) bool {
	return NewEvaluator(nil).Evaluate(expr, data)
}

// Evaluate returns the result of expr against data. Any parse or resolution error yields false.
func (e *Evaluator) Evaluate(expr string, data map[string]any) bool {
	node, err := Parse(expr)
	if err != nil {
		e.logger.Warn("Rejected condition expression", "expression", expr, "error", err)

		return false
	}

	result, err := Eval(node, data)
	if err != nil {
		e.logger.Warn("Condition expression could not be evaluated", "expression", expr, "error", err)

		return false
	}

	return result
}

// Eval interprets a parsed expression against data.
func Eval(node Node, data map[string]any) (bool, error) {
	switch n := node.(type) {
	case VariableRef:
		v, err := resolve(n, data)
		if err != nil {
			return false, err
		}

		return Truthy(v), nil
	case Comparison:
		left, err := operandValue(n.Left, data)
		if err != nil {
			return false, err
		}

		right, err := operandValue(n.Right, data)
		if err != nil {
			return false, err
		}

		return compare(n.Op, left, right)
	case Literal:
		return Truthy(n.Value), nil
	default:
		return false, fmt.Errorf("%w: unsupported node %T", ErrSyntax, node)
	}
}

func operandValue(node Node, data map[string]any) (any, error) {
	switch n := node.(type) {
	case Literal:
		return n.Value, nil
	case VariableRef:
		return resolve(n, data)
	default:
		return nil, fmt.Errorf("%w: %T is not an operand", ErrSyntax, node)
	}
}

func compare(op Operator, left, right any) (bool, error) {
	switch op {
	case OpEq:
		return LooseEqual(left, right), nil
	case OpNeq:
		return !LooseEqual(left, right), nil
	case OpStrictEq:
		return StrictEqual(left, right), nil
	case OpStrictNeq:
		return !StrictEqual(left, right), nil
	}

	l, r := ToNumber(left), ToNumber(right)
	if math.IsNaN(l) || math.IsNaN(r) {
		return false, nil
	}

	switch op {
	case OpGt:
		return l > r, nil
	case OpLt:
		return l < r, nil
	case OpGte:
		return l >= r, nil
	case OpLte:
		return l <= r, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrSyntax, op)
	}
}

// Lookup walks data along a dotted path. Slices are indexed by numeric segments.
func Lookup(data map[string]any, path []string) (any, bool) {
	var current any = data

	for _, segment := range path {
		switch c := current.(type) {
		case map[string]any:
			v, ok := c[segment]
			if !ok {
				return nil, false
			}

			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}

			current = c[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

func resolve(ref VariableRef, data map[string]any) (any, error) {
	v, ok := Lookup(data, ref.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}

	return v, nil
}
