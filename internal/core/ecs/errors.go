package ecs

import "errors"

var (
	ErrNoSuchEntity      = errors.New("no such entity")
	ErrMissingComponent  = errors.New("entity does not have component")
	ErrMissingResource   = errors.New("resource not present")
	ErrAlreadyDespawning = errors.New("entity already scheduled for removal")
)
