package ecs

import (
	"fmt"
	"reflect"
)

// Resources holds singleton values keyed by their Go type.
type Resources struct {
	values map[reflect.Type]any
}

// NewResources returns an empty resource set.
func NewResources() *Resources {
	return &Resources{values: make(map[reflect.Type]any)}
}

// InsertResource stores value, replacing any previous value of type T.
func InsertResource[T any](r *Resources, value T) {
	r.values[reflect.TypeFor[T]()] = value
}

// Resource fetches the value of type T.
func Resource[T any](r *Resources) (T, error) {
	v, ok := r.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrMissingResource, reflect.TypeFor[T]())
	}
	return v.(T), nil
}

// HasResource reports whether a T was inserted.
func HasResource[T any](r *Resources) bool {
	_, ok := r.values[reflect.TypeFor[T]()]
	return ok
}

// RemoveResource deletes the value of type T and reports whether it existed.
func RemoveResource[T any](r *Resources) bool {
	t := reflect.TypeFor[T]()
	_, ok := r.values[t]
	delete(r.values, t)
	return ok
}
