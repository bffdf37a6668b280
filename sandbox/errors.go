package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying sandbox construction failures.
var (
	// ErrArgument indicates malformed or insufficient invocation arguments.
	ErrArgument = errors.New("sandbox: invalid argument")

	// ErrPrivilege indicates a privileged kernel operation was refused,
	// typically because the binary is not setuid root.
	ErrPrivilege = errors.New("sandbox: privileged operation refused")

	// ErrMount indicates a mount-table operation failed for a reason
	// outside the tolerated set.
	ErrMount = errors.New("sandbox: mount operation failed")

	// ErrChroot indicates changing the working directory or filesystem
	// root failed.
	ErrChroot = errors.New("sandbox: chroot failed")

	// ErrExec indicates the target binary could not be located or executed.
	ErrExec = errors.New("sandbox: exec failed")

	// ErrSequence indicates a stage was invoked out of order. This is a
	// programming error, not a runtime condition.
	ErrSequence = errors.New("sandbox: setup stage out of order")
)

// OpError ties a failed operation to its classification and the underlying
// system error, so errors.Is works against both the sentinel and the errno.
type OpError struct {
	Kind error
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(kind error, op string, err error) error {
	return &OpError{Kind: kind, Op: op, Err: err}
}
