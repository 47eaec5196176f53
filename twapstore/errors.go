package twapstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUninitialized means nothing was ever pushed
	ErrStoreUninitialized = errors.New("twaps file not found")
	ErrNotFound           = errors.New("twap not found")
)

// ParseError is returned when the store file exists but can't be decoded
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing '%s': %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when we fail to write the store file
type PersistenceError struct {
	// "mkdir", "marshal", "write", "lock"
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s '%s': %s", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
