package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey surfaces a unique-constraint violation on
	// documents.identifier or documents.file_hash. It is the backstop when
	// two concurrent ingestions of the same invoice race past the
	// duplicate pre-check.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DuplicateDocumentError is the structured rejection returned when any of
// the four detection methods matches an already accepted document.
type DuplicateDocumentError struct {
	Identifier        string
	Method            DuplicateMethod
	MatchedIdentifier string
	Reasons           []string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("duplicate document %s: %s match against %s",
		e.Identifier, e.Method, e.MatchedIdentifier)
}

// PreconditionFailedError reports a status transition whose guard was not
// met, naming expected vs actual status.
type PreconditionFailedError struct {
	Op       string
	Expected string
	Actual   string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("%s: precondition failed: expected status %s, actual %s",
		e.Op, e.Expected, e.Actual)
}

// ValidationError reports one malformed input row during count import.
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

type AuthorizationError struct {
	Actor string
	Op    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: actor %q is not authorized", e.Op, e.Actor)
}
