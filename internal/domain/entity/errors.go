package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError
	ErrNotFound = errors.New("not found")

	// ErrNoReference means neither a contract nor a reference table prices the code
	ErrNoReference = errors.New("no reference price")

	// ErrNoContract means the operator has no active contract
	ErrNoContract = errors.New("no active contract")

	// ErrSizeClassNotRegistered means the code has no registered size class
	ErrSizeClassNotRegistered = errors.New("size class not registered")
)

// NotFoundError reports a missing guide, procedure or other record
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound builds a NotFoundError
func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// PersistenceError wraps a failed write to the store
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persist wraps err as a PersistenceError, returning nil for nil
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
