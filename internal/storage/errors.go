package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned when a unique constraint would be violated.
var ErrAlreadyExists = errors.New("storage: already exists")

// ErrConflict is returned when an optimistic-concurrency precondition fails
// (e.g. two active dialectic sessions on the same paused agent).
var ErrConflict = errors.New("storage: conflict")
