// Package set provides a minimal generic set.
package set

// Set is an unordered collection of comparable values. The zero value is
// ready to use.
type Set[T comparable] struct {
	members map[T]struct{}
}

// Insert adds a value to the set.
func (s *Set[T]) Insert(v T) {
	if s.members == nil {
		s.members = make(map[T]struct{})
	}
	s.members[v] = struct{}{}
}

// Contains reports whether the value is in the set.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.members[v]
	return ok
}

// Len returns the number of values in the set.
func (s *Set[T]) Len() int {
	return len(s.members)
}
