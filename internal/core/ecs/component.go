package ecs

// Removable is implemented by all component stores so the World can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// OrderedStore is a typed component store that iterates in insertion order.
// Simulation systems depend on a stable order for deterministic resolution.
type OrderedStore[T any] struct {
	index map[EntityID]int
	ids   []EntityID
	data  []*T
}

func NewOrderedStore[T any]() *OrderedStore[T] {
	return &OrderedStore[T]{
		index: make(map[EntityID]int, 64),
	}
}

// Set adds or replaces the component for id. New ids go to the end.
func (s *OrderedStore[T]) Set(id EntityID, c *T) {
	if i, ok := s.index[id]; ok {
		s.data[i] = c
		return
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.data = append(s.data, c)
}

func (s *OrderedStore[T]) Get(id EntityID) (*T, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.data[i], true
}

// Remove deletes id and keeps the relative order of the rest.
func (s *OrderedStore[T]) Remove(id EntityID) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	delete(s.index, id)
	copy(s.ids[i:], s.ids[i+1:])
	copy(s.data[i:], s.data[i+1:])
	last := len(s.ids) - 1
	s.data[last] = nil
	s.ids = s.ids[:last]
	s.data = s.data[:last]
	for j := i; j < len(s.ids); j++ {
		s.index[s.ids[j]] = j
	}
}

func (s *OrderedStore[T]) Has(id EntityID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *OrderedStore[T]) Len() int {
	return len(s.ids)
}

// Each visits components in insertion order. fn must not add or remove.
func (s *OrderedStore[T]) Each(fn func(EntityID, *T)) {
	for i, id := range s.ids {
		fn(id, s.data[i])
	}
}

// Values returns a snapshot slice of the components in insertion order.
func (s *OrderedStore[T]) Values() []*T {
	out := make([]*T, len(s.data))
	copy(out, s.data)
	return out
}
