package environment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var (
	// ErrDependency matches every *DependencyError.
	ErrDependency = errors.New("dependency error")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrUnsupportedEcosystem is returned when no handler is registered for
	// the requested ecosystem.
	ErrUnsupportedEcosystem = errors.New("unsupported ecosystem")

	// ErrExport is returned when an exporter fails. After a mutation it means
	// the change was committed but its exports are stale.
	ErrExport = errors.New("export failed")
)

// DependencyError is returned by remove when requested packages are not in
// the environment's dependency snapshot. Missing lists every absent name.
type DependencyError struct {
	Env       string
	Ecosystem pkgs.Ecosystem
	Missing   []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("could not find %s packages %v in %s", e.Ecosystem, e.Missing, e.Env)
}

// Is reports whether target is ErrDependency.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}

// Mismatch records a package installed at a version other than requested.
type Mismatch struct {
	Name      string
	Requested string
	Installed string
}

// ValidationError is returned when the refreshed snapshot does not match the
// expected post-condition of a mutation.
type ValidationError struct {
	Env        string
	Ecosystem  pkgs.Ecosystem
	Missing    []string   // requested but not installed
	Unexpected []string   // removed but still installed
	Mismatched []Mismatch // installed at the wrong version
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("packages %v not installed", e.Missing))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("packages %v still installed", e.Unexpected))
	}
	for _, m := range e.Mismatched {
		parts = append(parts, fmt.Sprintf("%s installed at %s, requested %s", m.Name, m.Installed, m.Requested))
	}
	return fmt.Sprintf("%s validation failed in %s: %s", e.Ecosystem, e.Env, strings.Join(parts, "; "))
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Unexpected) == 0 && len(e.Mismatched) == 0
}
