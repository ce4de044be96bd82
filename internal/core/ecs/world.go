package ecs

import (
	"fmt"
	"iter"
	"reflect"
)

// World owns every entity, their components and the global resources.
//
// Despawn only marks an entity: its components stay readable until Maintain
// runs at the end of the tick, after which the id no longer resolves and its
// slot may be handed out again under a new generation.
//
// A World is not safe for concurrent use; the tick loop is its only user.
type World struct {
	entities  entityPool
	storages  map[reflect.Type]componentStorage
	pending   []Entity
	despawned map[Entity]struct{}
	resources *Resources
}

// NewWorld returns a world without entities or resources.
func NewWorld() *World {
	return &World{
		storages:  make(map[reflect.Type]componentStorage),
		despawned: make(map[Entity]struct{}),
		resources: NewResources(),
	}
}

// Resources returns the world's resource set.
func (w *World) Resources() *Resources {
	return w.resources
}

// Spawn creates an empty entity.
func (w *World) Spawn() Entity {
	return w.entities.create()
}

// Despawn requests removal of e at the end of the current tick.
func (w *World) Despawn(e Entity) error {
	if !w.entities.contains(e) {
		return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	if _, ok := w.despawned[e]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDespawning, e)
	}
	w.despawned[e] = struct{}{}
	w.pending = append(w.pending, e)
	return nil
}

// IsAlive reports whether e resolves. Entities pending removal are still alive.
func (w *World) IsAlive(e Entity) bool {
	return w.entities.contains(e)
}

// IsDespawning reports whether e is waiting for Maintain.
func (w *World) IsDespawning(e Entity) bool {
	_, ok := w.despawned[e]
	return ok
}

// Len returns the number of live entities, including those pending removal.
func (w *World) Len() int {
	return w.entities.count
}

// Maintain destroys every entity whose removal was requested and returns
// how many were destroyed.
func (w *World) Maintain() int {
	n := len(w.pending)
	for _, e := range w.pending {
		for _, s := range w.storages {
			s.remove(e)
		}
		w.entities.destroy(e)
		delete(w.despawned, e)
	}
	w.pending = w.pending[:0]
	return n
}

func storageFor[T any](w *World) *Storage[T] {
	t := reflect.TypeFor[T]()
	if s, ok := w.storages[t]; ok {
		return s.(*Storage[T])
	}
	s := newStorage[T]()
	w.storages[t] = s
	return s
}

// Insert attaches value to e, replacing an existing component of type T.
func Insert[T any](w *World, e Entity, value T) error {
	if !w.entities.contains(e) {
		return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	storageFor[T](w).insert(e, value)
	return nil
}

// Get returns a pointer to e's component of type T. The pointer is only
// valid until the next Insert or Remove of a T on any entity.
func Get[T any](w *World, e Entity) (*T, error) {
	if !w.entities.contains(e) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	v, ok := storageFor[T](w).get(e)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrMissingComponent, reflect.TypeFor[T](), e)
	}
	return v, nil
}

// Has reports whether e is alive and carries a T.
func Has[T any](w *World, e Entity) bool {
	return w.entities.contains(e) && storageFor[T](w).contains(e)
}

// Remove detaches e's component of type T.
func Remove[T any](w *World, e Entity) error {
	if !w.entities.contains(e) {
		return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	if !storageFor[T](w).remove(e) {
		return fmt.Errorf("%w: %s on %s", ErrMissingComponent, reflect.TypeFor[T](), e)
	}
	return nil
}

// Count returns how many entities carry a T.
func Count[T any](w *World) int {
	return storageFor[T](w).len()
}

// Query iterates every entity carrying a T in storage order. Inserting or
// removing T components while iterating is not supported; collect first.
func Query[T any](w *World) iter.Seq2[Entity, *T] {
	s := storageFor[T](w)
	return func(yield func(Entity, *T) bool) {
		for i := 0; i < len(s.entities); i++ {
			if !yield(s.entities[i], &s.dense[i]) {
				return
			}
		}
	}
}
