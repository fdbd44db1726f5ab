package workflow

// Reducer defines how one field absorbs an update.
type Reducer[T any] func(current T, update T) T

// Field-level merge rules. A state type declares one rule per field and
// composes them into its Schema.Merge; the engine never looks inside.

// Replace keeps current unless the update is present.
func Replace[T any](current T, update *T) T {
	if update == nil {
		return current
	}
	return *update
}

// Append returns current followed by update in a freshly allocated slice,
// so neither argument is aliased by the result.
func Append[T any](current, update []T) []T {
	result := make([]T, 0, len(current)+len(update))
	result = append(result, current...)
	result = append(result, update...)
	return result
}

// UpsertByKey replaces items of current whose key matches an update item and
// appends the rest in update order. Untouched items keep their position.
func UpsertByKey[T any, K comparable](current, update []T, key func(T) K) []T {
	result := make([]T, len(current), len(current)+len(update))
	copy(result, current)
	if len(update) == 0 {
		return result
	}

	index := make(map[K]int, len(result))
	for i, item := range result {
		index[key(item)] = i
	}
	for _, item := range update {
		k := key(item)
		if i, ok := index[k]; ok {
			result[i] = item
			continue
		}
		index[k] = len(result)
		result = append(result, item)
	}
	return result
}

// Built-in reducers

// LastValueReducer returns the most recent value.
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer[[]T] {
	return Append[T]
}

// UpsertReducer upserts slice items by key.
func UpsertReducer[T any, K comparable](key func(T) K) Reducer[[]T] {
	return func(current, update []T) []T {
		return UpsertByKey(current, update, key)
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}
