package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
)

// StepFailedError is returned by the orchestrator when a step without
// AllowFailure exits non-zero. It identifies the failing step and preserves
// the child's literal exit code. The step's record is already in the ledger
// when this error surfaces.
type StepFailedError struct {
	StepName   string
	ExitStatus int
}

func (e StepFailedError) Error() string {
	return fmt.Sprintf("step %q failed with exit status %d", e.StepName, e.ExitStatus)
}
