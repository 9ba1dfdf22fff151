package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by DatabaseError when an update matches no row.
var ErrNotFound = errors.New("not found")

// DatabaseError is a persistence failure. Op and Table name what was being
// attempted.
type DatabaseError struct {
	Op    string
	Table string
	Err   error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// DuplicateSKUError is returned by CreateProduct when the manufacturer SKU
// already exists. The unique index is the authority; callers should
// re-fetch and treat the product as a duplicate.
type DuplicateSKUError struct {
	SKU string
	Err error
}

func (e *DuplicateSKUError) Error() string {
	return fmt.Sprintf("store: manufacturer sku %q already exists", e.SKU)
}

func (e *DuplicateSKUError) Unwrap() error {
	return e.Err
}

// IsDuplicateSKU reports whether err is a *DuplicateSKUError.
func IsDuplicateSKU(err error) bool {
	var d *DuplicateSKUError
	return errors.As(err, &d)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func dbErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Table: table, Err: err}
}
