package ecs

// componentStorage is the type-erased view of a Storage used by the World
// when an entity is destroyed.
type componentStorage interface {
	remove(e Entity) bool
	contains(e Entity) bool
	len() int
}

// Storage is a sparse set of components of one type. Dense slices keep
// iteration cache friendly; sparse maps a slot index to dense position + 1.
type Storage[T any] struct {
	sparse   []uint32
	dense    []T
	entities []Entity
}

func newStorage[T any]() *Storage[T] {
	return &Storage[T]{}
}

func (s *Storage[T]) slot(e Entity) (int, bool) {
	idx := int(e.Index())
	if idx >= len(s.sparse) || s.sparse[idx] == 0 {
		return 0, false
	}
	pos := int(s.sparse[idx] - 1)
	if s.entities[pos] != e {
		return 0, false
	}
	return pos, true
}

func (s *Storage[T]) insert(e Entity, value T) {
	if pos, ok := s.slot(e); ok {
		s.dense[pos] = value
		return
	}
	idx := int(e.Index())
	if idx >= len(s.sparse) {
		grown := make([]uint32, idx+1, max(idx+1, 2*len(s.sparse)))
		copy(grown, s.sparse)
		s.sparse = grown[:cap(grown)]
	}
	s.dense = append(s.dense, value)
	s.entities = append(s.entities, e)
	s.sparse[idx] = uint32(len(s.dense))
}

func (s *Storage[T]) get(e Entity) (*T, bool) {
	pos, ok := s.slot(e)
	if !ok {
		return nil, false
	}
	return &s.dense[pos], true
}

func (s *Storage[T]) contains(e Entity) bool {
	_, ok := s.slot(e)
	return ok
}

// remove swaps the last element into the hole.
func (s *Storage[T]) remove(e Entity) bool {
	pos, ok := s.slot(e)
	if !ok {
		return false
	}
	last := len(s.dense) - 1
	if pos != last {
		s.dense[pos] = s.dense[last]
		s.entities[pos] = s.entities[last]
		s.sparse[s.entities[pos].Index()] = uint32(pos + 1)
	}
	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.entities = s.entities[:last]
	s.sparse[e.Index()] = 0
	return true
}

func (s *Storage[T]) len() int {
	return len(s.dense)
}
