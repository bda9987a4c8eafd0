package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a binary comparison operator.
type Operator string

const (
	OpGt        Operator = ">"
	OpLt        Operator = "<"
	OpGte       Operator = ">="
	OpLte       Operator = "<="
	OpEq        Operator = "=="
	OpNeq       Operator = "!="
	OpStrictEq  Operator = "==="
	OpStrictNeq Operator = "!=="
)

// Node is a parsed expression. The set of node types is closed.
type Node interface {
	fmt.Stringer
	node()
}

// Literal is a number, string or boolean constant.
type Literal struct {
	Value any
}

// VariableRef is a {{dotted.path}} reference into the evaluation data.
type VariableRef struct {
	Path []string
}

// Comparison is <left> <op> <right>.
type Comparison struct {
	Left  Node
	Op    Operator
	Right Node
}

func (Literal) node()     {}
func (VariableRef) node() {}
func (Comparison) node()  {}

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

func (v VariableRef) String() string {
	return "{{" + strings.Join(v.Path, ".") + "}}"
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}
