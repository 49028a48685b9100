package certlogic

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-errors/errors"
)

// MaxDepth bounds the nesting of expressions, so that cyclic trees are reported instead
// of exhausting the stack
const MaxDepth = 256

// ErrLogicEvaluation is returned for operand count and type errors, unparseable dates and
// excessive nesting
var ErrLogicEvaluation = errors.Errorf("logic evaluation error")

var uvciSeparators = regexp.MustCompile("[/#:]")

// Evaluate evaluates the expression against the context. It has no side effects and may
// be called concurrently.
func Evaluate(node Node, ctx *Context) (Value, error) {
	if ctx == nil {
		ctx = NewContextFromValue(Null)
	}

	return evaluate(node, ctx, 0)
}

func evaluate(node Node, ctx *Context, depth int) (Value, error) {
	if depth > MaxDepth {
		return Null, evaluationError("Exceeded maximum expression depth of %d", MaxDepth)
	}

	switch n := node.(type) {
	case *Literal:
		return n.Value, nil

	case *Var:
		v := ctx.Resolve(n.Segments)
		if v.IsNull() && n.Default != nil {
			return evaluate(n.Default, ctx, depth+1)
		}
		return v, nil

	case *Array:
		elements := make([]Value, 0, len(n.Elements))
		for _, elem := range n.Elements {
			v, err := evaluate(elem, ctx, depth+1)
			if err != nil {
				return Null, err
			}
			elements = append(elements, v)
		}
		return Sequence(elements...), nil

	case *Operation:
		return evaluateOperation(n, ctx, depth)
	}

	return Null, evaluationError("Unsupported expression %T", node)
}

func evaluateOperation(op *Operation, ctx *Context, depth int) (Value, error) {
	ev := &evaluator{op: op, ctx: ctx, depth: depth + 1}

	switch op.Operator {
	case OpAnd, OpOr:
		return ev.andOr()
	case OpNot, OpBang:
		return ev.not()
	case OpStrictEquals:
		return ev.strictEquals()
	case OpIn:
		return ev.in()
	case OpLess, OpGreater, OpLessOrEqual, OpGreaterOrEqual:
		return ev.compare(false)
	case OpBefore, OpAfter, OpNotBefore, OpNotAfter:
		return ev.compare(true)
	case OpPlusTime:
		return ev.plusTime()
	case OpPlus:
		return ev.plus()
	case OpSome, OpAll, OpNone:
		return ev.quantify()
	case OpReduce:
		return ev.reduce()
	case OpIf:
		return ev.ifThenElse()
	case OpExtractFromUVCI:
		return ev.extractFromUVCI()
	}

	return Null, evaluationError("Unrecognized operator '%s'", op.Operator)
}

type evaluator struct {
	op    *Operation
	ctx   *Context
	depth int
}

func (ev *evaluator) arity(min, max int) error {
	n := len(ev.op.Operands)
	if n >= min && (max < 0 || n <= max) {
		return nil
	}

	switch {
	case min == max:
		return evaluationError("Operator '%s' takes %d operand(s), got %d", ev.op.Operator, min, n)
	case max < 0:
		return evaluationError("Operator '%s' takes at least %d operands, got %d", ev.op.Operator, min, n)
	default:
		return evaluationError("Operator '%s' takes %d to %d operands, got %d", ev.op.Operator, min, max, n)
	}
}

func (ev *evaluator) operand(i int) (Value, error) {
	return evaluate(ev.op.Operands[i], ev.ctx, ev.depth)
}

func (ev *evaluator) operands() ([]Value, error) {
	values := make([]Value, 0, len(ev.op.Operands))
	for i := range ev.op.Operands {
		v, err := ev.operand(i)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, nil
}

func (ev *evaluator) andOr() (Value, error) {
	if err := ev.arity(2, -1); err != nil {
		return Null, err
	}

	// Short-circuit: 'and' stops at the first falsy value, 'or' at the first truthy one
	stopAt := ev.op.Operator == OpOr

	var v Value
	for i := range ev.op.Operands {
		var err error
		v, err = ev.operand(i)
		if err != nil {
			return Null, err
		}

		if v.Truthy() == stopAt {
			return v, nil
		}
	}

	return v, nil
}

func (ev *evaluator) not() (Value, error) {
	if err := ev.arity(1, 1); err != nil {
		return Null, err
	}

	v, err := ev.operand(0)
	if err != nil {
		return Null, err
	}

	return Bool(!v.Truthy()), nil
}

func (ev *evaluator) strictEquals() (Value, error) {
	if err := ev.arity(2, 2); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	return Bool(values[0].Equal(values[1])), nil
}

func (ev *evaluator) in() (Value, error) {
	if err := ev.arity(2, 2); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	needle, haystack := values[0], values[1]
	switch haystack.Kind() {
	case KindNull:
		return Bool(false), nil

	case KindSequence:
		elements, _ := haystack.Elements()
		for _, elem := range elements {
			if needle.Equal(elem) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil

	case KindString:
		s, ok := needle.Str()
		if !ok {
			return Null, evaluationError("Operator 'in' on a string requires a string operand, got %s", needle.Kind())
		}
		h, _ := haystack.Str()
		return Bool(strings.Contains(h, s)), nil
	}

	return Null, evaluationError("Operator 'in' requires a sequence or string, got %s", haystack.Kind())
}

// compare handles numeric and chronological comparisons. Three operands form a chain,
// as in 'a < b < c'. Date operators only accept dates.
func (ev *evaluator) compare(datesOnly bool) (Value, error) {
	max := 2
	switch ev.op.Operator {
	case OpLess, OpLessOrEqual, OpBefore, OpAfter, OpNotBefore, OpNotAfter:
		max = 3
	}

	if err := ev.arity(2, max); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	for i := 0; i+1 < len(values); i++ {
		cmp, err := ev.compareValues(values[i], values[i+1], datesOnly)
		if err != nil {
			return Null, err
		}

		var ok bool
		switch ev.op.Operator {
		case OpLess, OpBefore:
			ok = cmp < 0
		case OpGreater, OpAfter:
			ok = cmp > 0
		case OpLessOrEqual, OpNotAfter:
			ok = cmp <= 0
		case OpGreaterOrEqual, OpNotBefore:
			ok = cmp >= 0
		}

		if !ok {
			return Bool(false), nil
		}
	}

	return Bool(true), nil
}

func (ev *evaluator) compareValues(a, b Value, datesOnly bool) (int, error) {
	if !datesOnly {
		an, aok := a.Number()
		bn, bok := b.Number()
		if aok && bok {
			switch {
			case an < bn:
				return -1, nil
			case an > bn:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	at, aok := asDate(a)
	bt, bok := asDate(b)
	if aok && bok {
		return at.Compare(bt), nil
	}

	if datesOnly {
		return 0, evaluationError("Operator '%s' requires dates, got %s and %s", ev.op.Operator, a, b)
	}

	return 0, evaluationError("Operator '%s' cannot compare %s and %s", ev.op.Operator, a, b)
}

func (ev *evaluator) plusTime() (Value, error) {
	if err := ev.arity(3, 3); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	t, ok := asDate(values[0])
	if !ok {
		return Null, evaluationError("Operator 'plusTime' requires a date, got %s", values[0])
	}

	amount, ok := values[1].Number()
	if !ok || amount != math.Trunc(amount) || math.Abs(amount) > math.MaxInt32 {
		return Null, evaluationError("Operator 'plusTime' requires an integer amount, got %s", values[1])
	}

	unit, _ := values[2].Str()
	shifted, ok := plusTime(t, int(amount), unit)
	if !ok {
		return Null, evaluationError("Operator 'plusTime' does not support time unit %s", values[2])
	}

	return Date(shifted), nil
}

func (ev *evaluator) plus() (Value, error) {
	if err := ev.arity(1, -1); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	sum := 0.0
	for _, v := range values {
		n, ok := v.Number()
		if !ok {
			return Null, evaluationError("Operator '+' requires numbers, got %s", v)
		}
		sum += n
	}

	return Number(sum), nil
}

// sequence evaluates the first operand as the sequence a quantifier or reduce iterates
// over; null counts as the empty sequence
func (ev *evaluator) sequence() ([]Value, error) {
	v, err := ev.operand(0)
	if err != nil {
		return nil, err
	}

	if v.IsNull() {
		return nil, nil
	}

	elements, ok := v.Elements()
	if !ok {
		return nil, evaluationError("Operator '%s' requires a sequence, got %s", ev.op.Operator, v.Kind())
	}

	return elements, nil
}

func (ev *evaluator) quantify() (Value, error) {
	if err := ev.arity(2, 2); err != nil {
		return Null, err
	}

	elements, err := ev.sequence()
	if err != nil {
		return Null, err
	}

	satisfied := 0
	for _, elem := range elements {
		v, err := evaluate(ev.op.Operands[1], ev.ctx.With(elem), ev.depth)
		if err != nil {
			return Null, err
		}

		if v.Truthy() {
			satisfied++

			if ev.op.Operator != OpAll {
				break
			}
		} else if ev.op.Operator == OpAll {
			return Bool(false), nil
		}
	}

	switch ev.op.Operator {
	case OpSome:
		return Bool(satisfied > 0), nil
	case OpNone:
		return Bool(satisfied == 0), nil
	default:
		// 'all' over an empty sequence is false
		return Bool(len(elements) > 0), nil
	}
}

func (ev *evaluator) reduce() (Value, error) {
	if err := ev.arity(3, 3); err != nil {
		return Null, err
	}

	elements, err := ev.sequence()
	if err != nil {
		return Null, err
	}

	accumulator, err := ev.operand(2)
	if err != nil {
		return Null, err
	}

	for _, elem := range elements {
		scope := Map(map[string]Value{
			"current":     elem,
			"accumulator": accumulator,
		})

		accumulator, err = evaluate(ev.op.Operands[1], ev.ctx.With(scope), ev.depth)
		if err != nil {
			return Null, err
		}
	}

	return accumulator, nil
}

// ifThenElse evaluates only the selected branch. More than three operands chain as
// 'else if'; without a final else the result is null.
func (ev *evaluator) ifThenElse() (Value, error) {
	if err := ev.arity(2, -1); err != nil {
		return Null, err
	}

	operands := ev.op.Operands
	i := 0
	for ; i+1 < len(operands); i += 2 {
		cond, err := ev.operand(i)
		if err != nil {
			return Null, err
		}

		if cond.Truthy() {
			return ev.operand(i + 1)
		}
	}

	if i < len(operands) {
		return ev.operand(i)
	}

	return Null, nil
}

func (ev *evaluator) extractFromUVCI() (Value, error) {
	if err := ev.arity(2, 2); err != nil {
		return Null, err
	}

	values, err := ev.operands()
	if err != nil {
		return Null, err
	}

	index, ok := values[1].Number()
	if !ok || index != math.Trunc(index) {
		return Null, evaluationError("Operator 'extractFromUVCI' requires an integer index, got %s", values[1])
	}

	if values[0].IsNull() {
		return Null, nil
	}

	uvci, ok := values[0].Str()
	if !ok {
		return Null, evaluationError("Operator 'extractFromUVCI' requires a string, got %s", values[0].Kind())
	}

	fragments := uvciSeparators.Split(strings.TrimPrefix(uvci, "URN:UVCI:"), -1)

	if index < 0 || int(index) >= len(fragments) {
		return Null, nil
	}

	return String(fragments[int(index)]), nil
}

func evaluationError(format string, args ...interface{}) *errors.Error {
	return errors.WrapPrefix(ErrLogicEvaluation, fmt.Sprintf(format, args...), 1)
}
