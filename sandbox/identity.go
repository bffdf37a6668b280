package sandbox

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ParseID parses a uid or gid argument. Only unsigned decimal digits are
// accepted: no sign, no whitespace, no trailing garbage. kind names the
// argument in the diagnostic ("user" or "group").
func ParseID(kind, arg string) (int, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, opErr(ErrArgument, fmt.Sprintf("invalid numeric %s id %q given", kind, arg), err)
	}
	return int(id), nil
}

// EnterRoot moves the process into the sandbox root. chdir comes first:
// chroot does not move the working directory, and a working directory
// outside the jail is an escape hatch.
func (s *Sandbox) EnterRoot() error {
	if err := s.require(StateReadOnlyEnforced, "enter sandbox root"); err != nil {
		return err
	}
	if err := s.sys.Chdir(s.RootDir); err != nil {
		return opErr(ErrChroot, "could not chdir into new root", err)
	}
	if err := s.sys.Chroot(s.RootDir); err != nil {
		return opErr(ErrChroot, "could not create chroot jail", err)
	}
	logrus.Debugf("chrooted into %s", s.RootDir)
	s.state = StateChrooted
	return nil
}

// DropIdentity lowers the group identity and then the user identity, in
// that order. The group must go first: once the user id is unprivileged the
// process no longer has permission to change its own group. Runs only after
// chroot, so the dropped identity starts life inside the jail.
func (s *Sandbox) DropIdentity() error {
	if err := s.require(StateChrooted, "drop identity"); err != nil {
		return err
	}
	if err := s.sys.Setgid(s.GID); err != nil {
		return opErr(ErrPrivilege, fmt.Sprintf("could not set new group id %d", s.GID), err)
	}
	if err := s.sys.Setuid(s.UID); err != nil {
		return opErr(ErrPrivilege, fmt.Sprintf("could not set new user id %d", s.UID), err)
	}
	logrus.Debugf("identity dropped to %d/%d", s.UID, s.GID)
	s.state = StateIdentityDropped
	return nil
}

// Exec replaces the process image with the target binary, argv passed
// through verbatim with the binary name as argv[0]. On success it does not
// return; this program has no successful exit of its own.
func (s *Sandbox) Exec() error {
	if err := s.require(StateIdentityDropped, "exec"); err != nil {
		return err
	}
	argv := append([]string{s.Binary}, s.Args...)
	if err := s.sys.Exec(s.Binary, argv); err != nil {
		return opErr(ErrExec, "could not exec "+s.Binary, err)
	}
	return nil
}
