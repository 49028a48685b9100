package certlogic

import (
	"strconv"
)

// Context is an immutable evaluation scope. Nested scopes are created by quantifiers and
// reduce; a path that is absent in a nested scope is looked up in its parent.
type Context struct {
	parent *Context
	data   Value
}

// NewContext binds the payload and external roots
func NewContext(payload, external interface{}) (*Context, error) {
	payloadValue, err := ValueOf(payload)
	if err != nil {
		return nil, evaluationError("Could not convert payload: %s", err.Error())
	}

	externalValue, err := ValueOf(external)
	if err != nil {
		return nil, evaluationError("Could not convert external values: %s", err.Error())
	}

	return NewContextFromValue(Map(map[string]Value{
		"payload":  payloadValue,
		"external": externalValue,
	})), nil
}

func NewContextFromValue(data Value) *Context {
	return &Context{data: data}
}

// With returns a nested scope in which data is the current value
func (c *Context) With(data Value) *Context {
	return &Context{parent: c, data: data}
}

// Resolve walks the path segments, yielding null when any step is absent. The lookup
// moves to the parent scope only when the first segment is absent from the nested value;
// a present null and the empty path resolve in the nested scope.
func (c *Context) Resolve(segments []string) Value {
	scope := c
	for len(segments) > 0 && scope.parent != nil && !has(scope.data, segments[0]) {
		scope = scope.parent
	}

	return resolve(scope.data, segments)
}

func has(data Value, segment string) bool {
	switch data.Kind() {
	case KindMap:
		return data.HasField(segment)

	case KindSequence:
		index, err := strconv.Atoi(segment)
		elements, _ := data.Elements()
		return err == nil && index >= 0 && index < len(elements)

	default:
		return false
	}
}

func resolve(data Value, segments []string) Value {
	current := data
	for _, segment := range segments {
		switch current.Kind() {
		case KindMap:
			current = current.Field(segment)

		case KindSequence:
			index, err := strconv.Atoi(segment)
			elements, _ := current.Elements()
			if err != nil || index < 0 || index >= len(elements) {
				return Null
			}
			current = elements[index]

		default:
			return Null
		}
	}

	return current
}
