// Package certlogic evaluates CertLogic expressions: a JsonLogic dialect for business rules
// over health certificates.
package certlogic

// Node is an expression. It is one of *Literal, *Var, *Array or *Operation.
type Node interface {
	node()
}

// Literal evaluates to itself
type Literal struct {
	Value Value
}

// Var resolves a path in the evaluation context
type Var struct {
	Path     string
	Segments []string

	// Default is evaluated when the path resolves to null, it may be nil
	Default Node
}

// Array is a sequence whose elements are expressions themselves
type Array struct {
	Elements []Node
}

// Operation applies an operator to its operands. The operand count is checked during
// evaluation.
type Operation struct {
	Operator Operator
	Operands []Node
}

func (*Literal) node()   {}
func (*Var) node()       {}
func (*Array) node()     {}
func (*Operation) node() {}

type Operator string

const (
	OpAnd             Operator = "and"
	OpOr              Operator = "or"
	OpNot             Operator = "not"
	OpBang            Operator = "!"
	OpStrictEquals    Operator = "==="
	OpIn              Operator = "in"
	OpLess            Operator = "<"
	OpGreater         Operator = ">"
	OpLessOrEqual     Operator = "<="
	OpGreaterOrEqual  Operator = ">="
	OpBefore          Operator = "before"
	OpAfter           Operator = "after"
	OpNotBefore       Operator = "not-before"
	OpNotAfter        Operator = "not-after"
	OpPlusTime        Operator = "plusTime"
	OpPlus            Operator = "+"
	OpSome            Operator = "some"
	OpAll             Operator = "all"
	OpNone            Operator = "none"
	OpReduce          Operator = "reduce"
	OpIf              Operator = "if"
	OpExtractFromUVCI Operator = "extractFromUVCI"
)
