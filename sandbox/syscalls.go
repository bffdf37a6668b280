package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/moby/sys/mountinfo"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// sysops is the seam between the stage machine and the kernel. Everything
// privileged goes through it so tests can assert call ordering without
// running as root.
type sysops interface {
	Unshare(flags int) error
	Mount(source, target, fstype string, flags uintptr, data string) error
	Mounts() ([]*mountinfo.Info, error)
	Chdir(dir string) error
	Chroot(dir string) error
	Setgid(gid int) error
	Setuid(uid int) error
	Exec(name string, argv []string) error
	CurrentNetNS() (netns.NsHandle, error)
	VerifyNetIsolation(origin netns.NsHandle) error
}

type unixOps struct{}

func (unixOps) Unshare(flags int) error {
	return unix.Unshare(flags)
}

func (unixOps) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (unixOps) Mounts() ([]*mountinfo.Info, error) {
	return mountinfo.GetMounts(nil)
}

func (unixOps) Chdir(dir string) error {
	return unix.Chdir(dir)
}

func (unixOps) Chroot(dir string) error {
	return unix.Chroot(dir)
}

func (unixOps) Setgid(gid int) error {
	return unix.Setgid(gid)
}

func (unixOps) Setuid(uid int) error {
	return unix.Setuid(uid)
}

// Exec resolves name against PATH inside the (already chrooted) filesystem
// and replaces the process image, execvp style.
func (unixOps) Exec(name string, argv []string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return err
	}
	return unix.Exec(path, argv, os.Environ())
}

func (unixOps) CurrentNetNS() (netns.NsHandle, error) {
	return netns.Get()
}

// VerifyNetIsolation checks that the calling thread left the origin network
// namespace and that the new one holds nothing beyond loopback. It
// configures nothing: the sandbox deliberately gets no usable network.
func (unixOps) VerifyNetIsolation(origin netns.NsHandle) error {
	current, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer current.Close()
	if origin.IsOpen() && current.Equal(origin) {
		return fmt.Errorf("still in the original network namespace")
	}
	links, err := netlink.LinkList()
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	for _, link := range links {
		if name := link.Attrs().Name; name != "lo" {
			return fmt.Errorf("unexpected interface %q in new namespace", name)
		}
	}
	return nil
}
