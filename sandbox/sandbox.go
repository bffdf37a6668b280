// Package sandbox builds the execution environment for an instrument
// simulation binary: private mount, network and IPC namespaces, a read-only
// recursive bind of the host filesystem under a chroot, and a dropped
// user/group identity. The whole construction runs with root privilege and
// is ordering-sensitive, so it is modeled as a forward-only stage machine.
package sandbox

import "fmt"

// State names the construction phases. Every stage method requires the
// state its predecessor left behind and advances it by one.
type State int

const (
	StateUnisolated State = iota
	StateNamespacesIsolated
	StateRootMounted
	StateReadOnlyEnforced
	StateChrooted
	StateIdentityDropped
)

func (s State) String() string {
	switch s {
	case StateUnisolated:
		return "unisolated"
	case StateNamespacesIsolated:
		return "namespaces-isolated"
	case StateRootMounted:
		return "root-mounted"
	case StateReadOnlyEnforced:
		return "read-only-enforced"
	case StateChrooted:
		return "chrooted"
	case StateIdentityDropped:
		return "identity-dropped"
	}
	return "unknown"
}

// Sandbox holds the invocation parameters and the current construction
// state. It is single-use: one Sandbox, one process, one Exec.
type Sandbox struct {
	RootDir string
	UID     int
	GID     int
	Binary  string
	Args    []string

	state State
	sys   sysops
}

func New(rootDir string, uid, gid int, binary string, args []string) *Sandbox {
	return &Sandbox{
		RootDir: rootDir,
		UID:     uid,
		GID:     gid,
		Binary:  binary,
		Args:    args,
		sys:     unixOps{},
	}
}

// State reports the stage the construction has reached.
func (s *Sandbox) State() State {
	return s.state
}

func (s *Sandbox) require(want State, op string) error {
	if s.state != want {
		return opErr(ErrSequence, op, fmt.Errorf("in state %s, want %s", s.state, want))
	}
	return nil
}

// Setup runs every stage up to and including the identity drop. On return
// without error the process is chrooted into RootDir, unprivileged, and
// ready for Exec. Any error is fatal for the caller; no stage is
// retryable and there is no rollback (the namespace dies with the process).
func (s *Sandbox) Setup() error {
	if err := s.IsolateNamespaces(); err != nil {
		return err
	}
	if err := s.MountRoot(); err != nil {
		return err
	}
	if err := s.EnforceReadOnly(); err != nil {
		return err
	}
	if err := s.EnterRoot(); err != nil {
		return err
	}
	return s.DropIdentity()
}
