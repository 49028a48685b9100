package certlogic

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
)

// ErrMalformedLogic is returned when decoded data does not have the shape of an expression
var ErrMalformedLogic = errors.Errorf("malformed logic")

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// ParseJSON parses a JSON encoded expression
func ParseJSON(logicJson []byte) (Node, error) {
	var logic interface{}
	err := json.Unmarshal(logicJson, &logic)
	if err != nil {
		return nil, malformed("Could not JSON unmarshal logic: %s", err.Error())
	}

	return Parse(logic)
}

// Parse converts decoded JSON or YAML data into an expression tree. Operator names and
// operand counts are not checked here.
func Parse(logic interface{}) (Node, error) {
	return parse(logic, 0)
}

func parse(logic interface{}, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, malformed("Logic is nested deeper than %d levels", MaxDepth)
	}

	switch tl := logic.(type) {
	case []interface{}:
		return parseArray(tl, depth)

	case map[string]interface{}:
		return parseObject(tl, depth)

	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(tl))
		for k, v := range tl {
			converted[fmt.Sprint(k)] = v
		}
		return parseObject(converted, depth)
	}

	value, err := ValueOf(logic)
	if err != nil {
		return nil, malformed("Unsupported literal: %s", err.Error())
	}

	if value.Kind() == KindMap {
		return nil, malformed("Unsupported literal map")
	}

	return &Literal{Value: value}, nil
}

func parseArray(elements []interface{}, depth int) (Node, error) {
	nodes := make([]Node, 0, len(elements))
	literals := make([]Value, 0, len(elements))
	for _, elem := range elements {
		node, err := parse(elem, depth+1)
		if err != nil {
			return nil, err
		}

		if lit, ok := node.(*Literal); ok && literals != nil {
			literals = append(literals, lit.Value)
		} else {
			literals = nil
		}

		nodes = append(nodes, node)
	}

	if literals != nil {
		return &Literal{Value: Sequence(literals...)}, nil
	}

	return &Array{Elements: nodes}, nil
}

func parseObject(obj map[string]interface{}, depth int) (Node, error) {
	if len(obj) != 1 {
		return nil, malformed("Operation must have exactly one key, has %d", len(obj))
	}

	var key string
	var operands interface{}
	for k, v := range obj {
		key, operands = k, v
	}

	if key == "var" {
		return parseVar(operands, depth)
	}

	op := &Operation{Operator: Operator(key)}

	list, ok := operands.([]interface{})
	if !ok {
		// A single operand may be given without wrapping it in an array
		list = []interface{}{operands}
	}

	for _, operand := range list {
		node, err := parse(operand, depth+1)
		if err != nil {
			return nil, err
		}
		op.Operands = append(op.Operands, node)
	}

	return op, nil
}

func parseVar(operands interface{}, depth int) (Node, error) {
	var path interface{}
	var defaultNode Node

	switch to := operands.(type) {
	case []interface{}:
		switch len(to) {
		case 0:
		case 1:
			path = to[0]
		case 2:
			path = to[0]

			var err error
			defaultNode, err = parse(to[1], depth+1)
			if err != nil {
				return nil, err
			}
		default:
			return nil, malformed("Var must have at most 2 operands, has %d", len(to))
		}
	default:
		path = to
	}

	var pathStr string
	switch tp := path.(type) {
	case nil:
	case string:
		pathStr = tp
	case float64:
		pathStr = strconv.FormatFloat(tp, 'f', -1, 64)
	case int:
		pathStr = strconv.Itoa(tp)
	default:
		return nil, malformed("Var path must be a string, is %T", path)
	}

	return &Var{
		Path:     pathStr,
		Segments: splitPath(pathStr),
		Default:  defaultNode,
	}, nil
}

// splitPath splits "a.b[0].c" and "a.b.0.c" into the same segments
func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	path = indexPattern.ReplaceAllString(path, ".$1")
	path = strings.TrimPrefix(path, ".")

	return strings.Split(path, ".")
}

func malformed(format string, args ...interface{}) *errors.Error {
	return errors.WrapPrefix(ErrMalformedLogic, fmt.Sprintf(format, args...), 1)
}
