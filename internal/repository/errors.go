// Package repository holds the sentinels shared by every store implementation.
package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique key
	ErrDuplicate = errors.New("duplicate key")
)
