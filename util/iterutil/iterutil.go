package iterutil

import "iter"

// NonNilValues returns an iterator over the non-nil elements of a slice of pointers,
// in slice order.
func NonNilValues[T any](slice []*T) iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for _, v := range slice {
			if v == nil {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}
