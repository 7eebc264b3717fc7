package gateway

import (
	"errors"
	"fmt"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// ErrPackageManager matches every *Error with errors.Is.
var ErrPackageManager = errors.New("package manager failed")

// Error is returned when a package manager invocation fails. It names the
// environment and the packages involved.
type Error struct {
	Ecosystem pkgs.Ecosystem
	Op        string // "create", "install", "remove" or "list"
	Env       string
	Packages  []string
	Err       error
}

func (e *Error) Error() string {
	if len(e.Packages) == 0 {
		return fmt.Sprintf("%s %s in %s failed: %v", e.Ecosystem, e.Op, e.Env, e.Err)
	}
	return fmt.Sprintf("%s %s of %v in %s failed: %v", e.Ecosystem, e.Op, e.Packages, e.Env, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPackageManager.
func (e *Error) Is(target error) bool {
	return target == ErrPackageManager
}

func newError(eco pkgs.Ecosystem, op, env string, names []string, err error) *Error {
	return &Error{Ecosystem: eco, Op: op, Env: env, Packages: names, Err: err}
}
