package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("registry: not found")

// DuplicateNameError is returned by CreateEntity when an entity with the
// same case-insensitive name already exists and creation was not forced.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("entity with name %q already exists", e.Name)
}

// IsDuplicateName reports whether err is a DuplicateNameError.
func IsDuplicateName(err error) bool {
	var d *DuplicateNameError
	return errors.As(err, &d)
}

// ContractError indicates the registry returned data that violates its own
// invariants (e.g. a Synonym with no primary to point at). It is fatal for
// the record being processed and must not be retried.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string {
	return "registry contract violation: " + e.Msg
}

// Contractf builds a ContractError with a formatted message.
func Contractf(format string, args ...interface{}) error {
	return &ContractError{Msg: fmt.Sprintf(format, args...)}
}

// IdentifierConflictError indicates an ISSN or eISSN on file disagrees with
// incoming data for a matched entity. The match itself is unsound, so the
// conflict is fatal rather than patched over.
type IdentifierConflictError struct {
	Field    string // "issn" or "eissn"
	Name     string // entity name
	OnFile   string
	Incoming string
}

func (e *IdentifierConflictError) Error() string {
	return fmt.Sprintf("%s conflict for %q: registry has %q, incoming data has %q",
		e.Field, e.Name, e.OnFile, e.Incoming)
}
