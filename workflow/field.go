package workflow

import "fmt"

// Field is a typed accessor for one State field.
type Field[T any] struct {
	name string
}

// NewField declares a typed field with the given name
func NewField[T any](name string) Field[T] {
	return Field[T]{name: name}
}

// Name returns the field name
func (f Field[T]) Name() string { return f.name }

// Get returns the typed value. ok is false when the field is absent,
// explicitly nil, or holds a value of another type.
func (f Field[T]) Get(s State) (T, bool) {
	var zero T
	raw, ok := s.Get(f.name)
	if !ok || raw == nil {
		return zero, false
	}
	if v, ok := raw.(T); ok {
		return v, true
	}
	if v, ok := convertValue[T](raw); ok {
		return v, true
	}
	return zero, false
}

// GetOr returns the typed value or def when it is not set
func (f Field[T]) GetOr(s State, def T) T {
	if v, ok := f.Get(s); ok {
		return v
	}
	return def
}

// IsSet reports whether the field holds a non-nil value
func (f Field[T]) IsSet(s State) bool {
	_, ok := f.Get(s)
	return ok
}

// Set returns a copy of s with the field set
func (f Field[T]) Set(s State, v T) State {
	return s.With(f.name, v)
}

// Clear returns a copy of s with the field explicitly nil
func (f Field[T]) Clear(s State) State {
	return s.With(f.name, nil)
}

func (f Field[T]) String() string {
	var zero T
	return fmt.Sprintf("%s(%T)", f.name, zero)
}

// convertValue handles values that went through JSON decoding,
// where lists come back as []any and numbers as int64 or float64.
func convertValue[T any](raw any) (T, bool) {
	var zero T
	var out any
	switch any(zero).(type) {
	case float64:
		switch n := raw.(type) {
		case int:
			out = float64(n)
		case int64:
			out = float64(n)
		case float32:
			out = float64(n)
		}
	case int:
		switch n := raw.(type) {
		case int64:
			out = int(n)
		case float64:
			if n == float64(int(n)) {
				out = int(n)
			}
		}
	case []string:
		list, ok := raw.([]any)
		if !ok {
			return zero, false
		}
		strs := make([]string, 0, len(list))
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return zero, false
			}
			strs = append(strs, s)
		}
		out = strs
	}
	if out == nil {
		return zero, false
	}
	v, ok := out.(T)
	return v, ok
}
