package sandbox

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// unshareFlags detaches mounts, network and IPC in one call. CLONE_FS is
// included because Go runtime threads share filesystem state and the kernel
// refuses CLONE_NEWNS for a thread that still shares it; the caller must
// have pinned its OS thread.
const unshareFlags = unix.CLONE_NEWNS | unix.CLONE_NEWNET | unix.CLONE_NEWIPC | unix.CLONE_FS

// IsolateNamespaces detaches the process into private mount, network and
// IPC namespaces. This must precede any mount manipulation: only a private
// mount namespace makes the later remounts invisible to the host. The
// network side is verified afterwards so a silently shared namespace cannot
// go unnoticed.
func (s *Sandbox) IsolateNamespaces() error {
	if err := s.require(StateUnisolated, "isolate namespaces"); err != nil {
		return err
	}
	origin, err := s.sys.CurrentNetNS()
	if err == nil {
		defer origin.Close()
	}
	if err := s.sys.Unshare(unshareFlags); err != nil {
		return opErr(ErrPrivilege, "could not create namespaces (is the binary setuid root?)", err)
	}
	if err := s.sys.VerifyNetIsolation(origin); err != nil {
		return opErr(ErrPrivilege, "network namespace not isolated", err)
	}
	logrus.Debug("namespaces isolated")
	s.state = StateNamespacesIsolated
	return nil
}
