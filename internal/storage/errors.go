package storage

import (
	"errors"
	"fmt"

	"github.com/carter293/hasItPumped/internal/domain"
)

var (
	// ErrNotFound is returned when no record exists for a mint.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Error wraps a backend failure. It matches domain.ErrStorage so callers can
// tell a broken cache apart from a plain miss.
type Error struct {
	Op  string // store operation, e.g. "get", "upsert"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports domain.ErrStorage as a match.
func (e *Error) Is(target error) bool {
	return target == domain.ErrStorage
}

// Wrap returns err as a *Error for op. Nil, ErrNotFound and ErrInvalidInput
// are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}
