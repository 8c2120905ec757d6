package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that a referenced book, loan or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates that no actor identity was supplied.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates that the actor's role does not permit the action.
	ErrForbidden = errors.New("not authorized to perform this action")
	// ErrCannotBorrow covers both "no copies available" and "already borrowed
	// by this user". The two are deliberately not distinguished.
	ErrCannotBorrow = errors.New("you cannot borrow this book: it may not be available or you may have already borrowed it")
	// ErrAlreadyReturned indicates a return on a loan that is already returned.
	ErrAlreadyReturned = errors.New("this book has already been returned")
	// ErrInvalidTransition indicates a loan mutation other than borrowed->returned.
	ErrInvalidTransition = errors.New("only status updates to returned are allowed")
	// ErrConstraintConflict is reported by stores when a uniqueness constraint
	// rejects a write.
	ErrConstraintConflict = errors.New("constraint conflict")
)

// NotFoundError carries the entity kind and identifier of a missing record.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is reports ErrNotFound so callers can match with errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound returns a NotFoundError for entity/id.
func NewNotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// FieldError is a single violated field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + " " + f.Message
}

// ValidationError lists every violated field of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.String())
	}
	return "validation failed: " + strings.Join(msgs, ", ")
}

// Add appends a field violation.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasField reports whether field is among the violations.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns e when it holds violations and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
