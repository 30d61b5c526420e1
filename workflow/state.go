package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// State is the record threaded through a workflow run.
//
// Fields keep their insertion order. A field that was never written is absent;
// a field written with nil is present and explicitly empty. State values are
// immutable: every mutating helper returns a new State and leaves the receiver
// untouched.
type State struct {
	keys    []string
	values  map[string]any
	version uint64
}

// NewState creates an empty state
func NewState() State {
	return State{values: map[string]any{}}
}

// StateFrom builds a state from alternating field/value pairs.
// It panics on an odd number of arguments or a non-string field name.
func StateFrom(kv ...any) State {
	if len(kv)%2 != 0 {
		panic("workflow: StateFrom requires field/value pairs")
	}
	s := NewState()
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("workflow: field name at position %d is %T, want string", i, kv[i]))
		}
		s = s.With(name, kv[i+1])
	}
	return s
}

// Len returns the number of present fields
func (s State) Len() int { return len(s.keys) }

// Version is incremented each time a merge changes at least one field.
func (s State) Version() uint64 { return s.version }

// Keys returns field names in insertion order.
func (s State) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Has reports whether the field is present, including explicit nil.
func (s State) Has(field string) bool {
	_, ok := s.values[field]
	return ok
}

// Get returns the field value and whether it is present.
func (s State) Get(field string) (any, bool) {
	v, ok := s.values[field]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// IsNil reports whether the field is present with an explicit nil value.
func (s State) IsNil(field string) bool {
	v, ok := s.values[field]
	return ok && v == nil
}

// With returns a copy of the state with field set to value.
func (s State) With(field string, value any) State {
	out := s.Clone()
	if _, ok := out.values[field]; !ok {
		out.keys = append(out.keys, field)
	}
	out.values[field] = cloneValue(value)
	return out
}

// Clone returns an independent copy. Lists and nested records are copied one level deep.
func (s State) Clone() State {
	out := State{
		keys:    make([]string, len(s.keys)),
		values:  make(map[string]any, len(s.values)),
		version: s.version,
	}
	copy(out.keys, s.keys)
	for k, v := range s.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Map returns the fields as a plain map.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether both states hold the same fields in the same order
// with deeply equal values. Versions are not compared.
func (s State) Equal(other State) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for i, k := range s.keys {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(s.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

// Merge applies delta onto current with shallow last-write-wins semantics.
// Fields present in delta replace those in current, everything else is kept.
// Neither argument is modified.
func Merge(current, delta State) State {
	out, _ := mergeState(current, delta)
	return out
}

// mergeState merges and reports the fields whose value actually changed.
func mergeState(current, delta State) (State, []string) {
	out := current.Clone()
	var changed []string
	for _, k := range delta.keys {
		nv := delta.values[k]
		old, ok := out.values[k]
		if !ok {
			out.keys = append(out.keys, k)
		}
		if !ok || !reflect.DeepEqual(old, nv) {
			changed = append(changed, k)
		}
		out.values[k] = cloneValue(nv)
	}
	if len(changed) > 0 {
		out.version++
	}
	return out, changed
}

// MarshalJSON encodes the state as a JSON object preserving field order.
func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the field order of the input.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("state must be a JSON object")
	}
	out := NewState()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out = out.With(key, normalizeJSON(raw))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		if t == nil {
			return t
		}
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case State:
		return t.Clone()
	default:
		return v
	}
}
