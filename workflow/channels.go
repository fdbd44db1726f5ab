package workflow

import (
	"fmt"
	"maps"
)

// Values is a map-based run state for graphs that do not declare a struct.
// Each key behaves according to its Annotation.
type Values map[string]any

// Policy is the merge rule for one Values key.
type Policy int

const (
	// PolicyReplace overwrites the key when the update carries it (default).
	PolicyReplace Policy = iota
	// PolicyAppend concatenates []any values.
	PolicyAppend
	// PolicyUpsert upserts []any values by Annotation.Key.
	PolicyUpsert
	// PolicyImmutable ignores every update. The value comes from the initial
	// state only; a key absent at run start stays absent.
	PolicyImmutable
	// PolicyMergeMap merges map[string]any values, update keys winning.
	PolicyMergeMap
)

func (p Policy) String() string {
	switch p {
	case PolicyReplace:
		return "replace"
	case PolicyAppend:
		return "append"
	case PolicyUpsert:
		return "upsert"
	case PolicyImmutable:
		return "immutable"
	case PolicyMergeMap:
		return "merge_map"
	default:
		return "unknown"
	}
}

// DefaultErrorsKey holds the error list of a Values state.
const DefaultErrorsKey = "errors"

// Annotation declares the merge policy of one key.
type Annotation struct {
	Name   string
	Policy Policy
	// Key extracts the upsert identity of an item (PolicyUpsert only).
	Key func(item any) string
}

// ReplaceField declares a last-value-wins key.
func ReplaceField(name string) Annotation {
	return Annotation{Name: name, Policy: PolicyReplace}
}

// AppendField declares an accumulator key.
func AppendField(name string) Annotation {
	return Annotation{Name: name, Policy: PolicyAppend}
}

// UpsertField declares a keyed-collection key.
func UpsertField(name string, key func(item any) string) Annotation {
	return Annotation{Name: name, Policy: PolicyUpsert, Key: key}
}

// InputField declares a key that only the initial state may set.
func InputField(name string) Annotation {
	return Annotation{Name: name, Policy: PolicyImmutable}
}

// MapField declares a key whose map value absorbs updates key by key.
func MapField(name string) Annotation {
	return Annotation{Name: name, Policy: PolicyMergeMap}
}

// ChannelOption configures a channel schema.
type ChannelOption func(*channelSchema)

// WithErrorsKey changes the key of the error list.
func WithErrorsKey(key string) ChannelOption {
	return func(c *channelSchema) {
		c.errorsKey = key
	}
}

// WithRevisionKey names the int key holding the revision counter.
func WithRevisionKey(key string) ChannelOption {
	return func(c *channelSchema) {
		c.revisionKey = key
	}
}

type channelSchema struct {
	// reducers holds one rule per annotated key; a nil entry marks an
	// immutable key.
	reducers    map[string]Reducer[any]
	errorsKey   string
	revisionKey string
}

// NewChannelSchema builds a Schema over Values from per-key annotations.
// The errors key is always an append field. It panics when an upsert
// annotation has no key function.
func NewChannelSchema(annotations []Annotation, opts ...ChannelOption) Schema[Values, Values] {
	c := &channelSchema{
		reducers:    make(map[string]Reducer[any], len(annotations)+1),
		errorsKey:   DefaultErrorsKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, a := range annotations {
		if a.Policy == PolicyUpsert && a.Key == nil {
			panic(fmt.Sprintf("workflow: upsert annotation %q has no key function", a.Name))
		}
		c.reducers[a.Name] = reducerFor(a)
	}
	c.reducers[c.errorsKey] = reducerFor(AppendField(c.errorsKey))

	schema := Schema[Values, Values]{
		Merge:       c.merge,
		ErrorUpdate: c.errorUpdate,
		Clone:       cloneValues,
	}
	if c.revisionKey != "" {
		schema.Revision = c.revision
	}
	return schema
}

// reducerFor adapts the typed reducers to untyped Values entries.
func reducerFor(a Annotation) Reducer[any] {
	switch a.Policy {
	case PolicyImmutable:
		return nil
	case PolicyAppend:
		appendAll := AppendReducer[any]()
		return func(current, update any) any {
			return appendAll(asSlice(current), asSlice(update))
		}
	case PolicyUpsert:
		upsert := UpsertReducer[any, string](a.Key)
		return func(current, update any) any {
			return upsert(asSlice(current), asSlice(update))
		}
	case PolicyMergeMap:
		mergeMaps := MergeMapReducer[string, any]()
		return func(current, update any) any {
			return mergeMaps(asMap(current), asMap(update))
		}
	default:
		return LastValueReducer[any]()
	}
}

func (c *channelSchema) merge(current, update Values) Values {
	next := make(Values, len(current)+len(update))
	maps.Copy(next, current)

	for name, value := range update {
		reduce, ok := c.reducers[name]
		if !ok {
			next[name] = value
			continue
		}
		if reduce == nil {
			continue
		}
		next[name] = reduce(current[name], value)
	}
	return next
}

func (c *channelSchema) errorUpdate(message string) Values {
	return Values{c.errorsKey: []any{message}}
}

func (c *channelSchema) revision(state Values) int {
	n, _ := state[c.revisionKey].(int)
	return n
}

// asSlice normalises accumulator values. A non-slice value counts as a single
// item so that a stage returning one entry does not lose it.
func asSlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	default:
		return []any{v}
	}
}

// asMap normalises map-valued entries. Anything else counts as empty.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func cloneValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		switch typed := val.(type) {
		case []any:
			val = append([]any(nil), typed...)
		case map[string]any:
			val = maps.Clone(typed)
		}
		out[k] = val
	}
	return out
}

// Errors returns the error list of a Values state stored under key.
func (v Values) Errors(key string) []string {
	items := asSlice(v[key])
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
