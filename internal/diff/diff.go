// Package diff computes keyed added/removed deltas between two snapshots of
// the same collection.
package diff

// Result is the delta between a previous and a current snapshot.
type Result[T any] struct {
	Added   []T
	Removed []T
}

// Empty reports whether the snapshots are identical by key. Callers treat an
// empty result as a no-op.
func (r Result[T]) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Diff returns the entries of current whose key is absent from previous
// (Added, in current order) and the entries of previous whose key is absent
// from current (Removed, in previous order). No sorting is applied.
func Diff[T any, K comparable](previous, current []T, key func(T) K) Result[T] {
	prevKeys := keySet(previous, key)
	currKeys := keySet(current, key)

	var res Result[T]
	for _, item := range current {
		if _, ok := prevKeys[key(item)]; !ok {
			res.Added = append(res.Added, item)
		}
	}
	for _, item := range previous {
		if _, ok := currKeys[key(item)]; !ok {
			res.Removed = append(res.Removed, item)
		}
	}
	return res
}

func keySet[T any, K comparable](items []T, key func(T) K) map[K]struct{} {
	set := make(map[K]struct{}, len(items))
	for _, item := range items {
		set[key(item)] = struct{}{}
	}
	return set
}
