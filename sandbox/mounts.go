package sandbox

import (
	"errors"
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mlz-ictrl/nicos-sandbox/consts"
)

// MountRoot makes the inherited mount tree private and bind-mounts the
// whole host hierarchy, sub-mounts included, onto the sandbox root.
func (s *Sandbox) MountRoot() error {
	if err := s.require(StateNamespacesIsolated, "mount sandbox root"); err != nil {
		return err
	}
	// Since systemd the root mount is shared by default, so a fresh mount
	// namespace still propagates remounts back to the host. MS_PRIVATE on
	// the whole tree cuts that link.
	if err := s.sys.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return opErr(ErrMount, "could not make mounts private", err)
	}
	if err := s.sys.Mount("/", s.RootDir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return opErr(ErrMount, "could not create bind mount at "+s.RootDir, err)
	}
	logrus.Debugf("bound / at %s", s.RootDir)
	s.state = StateRootMounted
	return nil
}

// Action is the enforcement decision for one mount-table entry.
type Action int

const (
	ActionIgnore       Action = iota // not under the sandbox root
	ActionKeepWritable               // tmpfs scratch space
	ActionRemountReadOnly
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionKeepWritable:
		return "keep writable"
	case ActionRemountReadOnly:
		return "remount read-only"
	}
	return "unknown"
}

// Classify decides what the enforcer does with a mount entry. The prefix
// match is plain textual, as in the original tool: /tmp/sbx also matches a
// sibling /tmp/sbxY. Accepted imprecision, the root is expected to be a
// dedicated scratch directory.
func Classify(m *mountinfo.Info, rootDir string) Action {
	if !strings.HasPrefix(m.Mountpoint, rootDir) {
		return ActionIgnore
	}
	if m.FSType == consts.FSTYPE_TMPFS {
		return ActionKeepWritable
	}
	return ActionRemountReadOnly
}

// remountFlags computes the flag set for the read-only remount of one
// entry. A remount drops per-mount flags that are not re-specified, so
// every security-relevant flag already present must be asserted again.
func remountFlags(options string) uintptr {
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY)
	for _, opt := range strings.Split(options, ",") {
		switch opt {
		case "nodev":
			flags |= unix.MS_NODEV
		case "noexec":
			flags |= unix.MS_NOEXEC
		case "nosuid":
			flags |= unix.MS_NOSUID
		case "noatime":
			flags |= unix.MS_NOATIME
		case "nodiratime":
			flags |= unix.MS_NODIRATIME
		case "relatime":
			flags |= unix.MS_RELATIME
		}
	}
	return flags
}

// toleratedRemountErr reports whether a failed remount may be skipped.
// Special filesystems and mounts the process legitimately cannot alter fail
// with one of these without endangering the sandbox.
func toleratedRemountErr(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.EACCES, unix.EINVAL, unix.ESTALE, unix.EPERM:
		return true
	}
	return false
}

// EnforceReadOnly takes a fresh snapshot of the live mount table and
// remounts every entry under the sandbox root read-only, tmpfs excepted.
// The snapshot is never cached: the table belongs to the kernel, not to us.
func (s *Sandbox) EnforceReadOnly() error {
	if err := s.require(StateRootMounted, "enforce read-only"); err != nil {
		return err
	}
	mounts, err := s.sys.Mounts()
	if err != nil {
		return opErr(ErrMount, "could not get list of mountpoints", err)
	}
	for _, m := range mounts {
		switch Classify(m, s.RootDir) {
		case ActionIgnore:
			continue
		case ActionKeepWritable:
			logrus.Debugf("leaving %s writable (%s)", m.Mountpoint, m.FSType)
			continue
		}
		if err := s.sys.Mount("", m.Mountpoint, "", remountFlags(m.Options), ""); err != nil {
			if toleratedRemountErr(err) {
				logrus.Debugf("skipping %s: %v", m.Mountpoint, err)
				continue
			}
			return opErr(ErrMount, "could not set mountpoint "+m.Mountpoint+" read-only", err)
		}
		logrus.Debugf("remounted %s read-only", m.Mountpoint)
	}
	s.state = StateReadOnlyEnforced
	return nil
}
