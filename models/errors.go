package models

import "errors"

// Sentinel errors shared by every layer. Wrap them with fmt.Errorf("%w: ...")
// and check with errors.Is.
var (
	// ErrValidation indicates malformed caller input. Nothing was stored or queued.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing dataset, record, job or result.
	ErrNotFound = errors.New("not found")

	// ErrDependency indicates the store or an external collaborator failed.
	ErrDependency = errors.New("dependency error")
)
