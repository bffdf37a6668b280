package sandbox

import (
	"errors"
	"reflect"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// fakeOps records every kernel call in order and can inject failures per
// operation, so stage ordering and error classification are testable
// without privileges.
type fakeOps struct {
	calls  []string
	mounts []*mountinfo.Info
	failOn map[string]error
	argv   []string
}

func (f *fakeOps) record(op string) error {
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeOps) Unshare(flags int) error {
	return f.record("unshare")
}

func (f *fakeOps) Mount(source, target, fstype string, flags uintptr, data string) error {
	switch {
	case flags&unix.MS_REMOUNT != 0:
		return f.record("remount " + target)
	case flags&unix.MS_PRIVATE != 0:
		return f.record("make-private")
	default:
		return f.record("bind " + target)
	}
}

func (f *fakeOps) Mounts() ([]*mountinfo.Info, error) {
	if err := f.record("mounts"); err != nil {
		return nil, err
	}
	return f.mounts, nil
}

func (f *fakeOps) Chdir(dir string) error  { return f.record("chdir") }
func (f *fakeOps) Chroot(dir string) error { return f.record("chroot") }
func (f *fakeOps) Setgid(gid int) error    { return f.record("setgid") }
func (f *fakeOps) Setuid(uid int) error    { return f.record("setuid") }

func (f *fakeOps) Exec(name string, argv []string) error {
	f.argv = argv
	return f.record("exec")
}

func (f *fakeOps) CurrentNetNS() (netns.NsHandle, error) {
	return netns.None(), nil
}

func (f *fakeOps) VerifyNetIsolation(origin netns.NsHandle) error {
	return f.record("verify-net")
}

func testMounts() []*mountinfo.Info {
	return []*mountinfo.Info{
		{Mountpoint: "/sbx", FSType: "ext4", Options: "rw,relatime"},
		{Mountpoint: "/sbx/proc", FSType: "proc", Options: "rw,nosuid,nodev,noexec,relatime"},
		{Mountpoint: "/sbx/tmp", FSType: "tmpfs", Options: "rw,nosuid,nodev"},
		{Mountpoint: "/home", FSType: "ext4", Options: "rw,relatime"},
	}
}

func newTestSandbox(f *fakeOps) *Sandbox {
	s := New("/sbx", 1000, 1000, "/bin/echo", []string{"hello"})
	s.sys = f
	return s
}

func TestSetupCallOrder(t *testing.T) {
	f := &fakeOps{mounts: testMounts()}
	s := newTestSandbox(f)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := s.Exec(); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	want := []string{
		"unshare",
		"verify-net",
		"make-private",
		"bind /sbx",
		"mounts",
		"remount /sbx",
		"remount /sbx/proc",
		"chdir",
		"chroot",
		"setgid",
		"setuid",
		"exec",
	}
	if !reflect.DeepEqual(f.calls, want) {
		t.Errorf("call order = %v, want %v", f.calls, want)
	}
	if s.State() != StateIdentityDropped {
		t.Errorf("state = %v, want %v", s.State(), StateIdentityDropped)
	}
}

func TestGroupDroppedBeforeUser(t *testing.T) {
	f := &fakeOps{mounts: testMounts()}
	s := newTestSandbox(f)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	gid, uid, chroot := -1, -1, -1
	for i, call := range f.calls {
		switch call {
		case "setgid":
			gid = i
		case "setuid":
			uid = i
		case "chroot":
			chroot = i
		}
	}
	if gid < 0 || uid < 0 || chroot < 0 {
		t.Fatalf("missing identity calls in %v", f.calls)
	}
	if !(chroot < gid && gid < uid) {
		t.Errorf("want chroot < setgid < setuid, got indexes chroot=%d setgid=%d setuid=%d", chroot, gid, uid)
	}
}

func TestExecArgv(t *testing.T) {
	f := &fakeOps{mounts: testMounts()}
	s := newTestSandbox(f)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := s.Exec(); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	want := []string{"/bin/echo", "hello"}
	if !reflect.DeepEqual(f.argv, want) {
		t.Errorf("argv = %v, want %v", f.argv, want)
	}
}

func TestStageOrderEnforced(t *testing.T) {
	f := &fakeOps{mounts: testMounts()}
	s := newTestSandbox(f)

	if err := s.DropIdentity(); !errors.Is(err, ErrSequence) {
		t.Errorf("DropIdentity before setup: error = %v, want ErrSequence", err)
	}
	if err := s.Exec(); !errors.Is(err, ErrSequence) {
		t.Errorf("Exec before setup: error = %v, want ErrSequence", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("out-of-order stages reached the kernel: %v", f.calls)
	}

	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := s.IsolateNamespaces(); !errors.Is(err, ErrSequence) {
		t.Errorf("second IsolateNamespaces: error = %v, want ErrSequence", err)
	}
}

func TestSetupFailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		failOn map[string]error
		want   error
	}{
		{
			name:   "unshare refused",
			failOn: map[string]error{"unshare": unix.EPERM},
			want:   ErrPrivilege,
		},
		{
			name:   "make private refused",
			failOn: map[string]error{"make-private": unix.EINVAL},
			want:   ErrMount,
		},
		{
			name:   "bind mount failed",
			failOn: map[string]error{"bind /sbx": unix.ENOENT},
			want:   ErrMount,
		},
		{
			name:   "mount table unreadable",
			failOn: map[string]error{"mounts": unix.ENOENT},
			want:   ErrMount,
		},
		{
			name:   "chdir failed",
			failOn: map[string]error{"chdir": unix.ENOENT},
			want:   ErrChroot,
		},
		{
			name:   "chroot failed",
			failOn: map[string]error{"chroot": unix.EPERM},
			want:   ErrChroot,
		},
		{
			name:   "setgid refused",
			failOn: map[string]error{"setgid": unix.EPERM},
			want:   ErrPrivilege,
		},
		{
			name:   "setuid refused",
			failOn: map[string]error{"setuid": unix.EPERM},
			want:   ErrPrivilege,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeOps{mounts: testMounts(), failOn: tt.failOn}
			s := newTestSandbox(f)
			err := s.Setup()
			if !errors.Is(err, tt.want) {
				t.Errorf("Setup() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMountFailureLeavesIdentityUntouched(t *testing.T) {
	f := &fakeOps{mounts: testMounts(), failOn: map[string]error{"bind /sbx": unix.ENOENT}}
	s := newTestSandbox(f)
	if err := s.Setup(); !errors.Is(err, ErrMount) {
		t.Fatalf("Setup() error = %v, want ErrMount", err)
	}
	for _, call := range f.calls {
		if call == "setgid" || call == "setuid" {
			t.Errorf("identity call %q after mount failure", call)
		}
	}
}

func TestExecFailure(t *testing.T) {
	f := &fakeOps{mounts: testMounts(), failOn: map[string]error{"exec": unix.ENOENT}}
	s := newTestSandbox(f)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := s.Exec(); !errors.Is(err, ErrExec) {
		t.Errorf("Exec() error = %v, want ErrExec", err)
	}
}

func TestRemountToleratedErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		fatal   bool
		reached bool // whether setup continued to chdir
	}{
		{name: "permission denied", err: unix.EACCES, fatal: false, reached: true},
		{name: "invalid argument", err: unix.EINVAL, fatal: false, reached: true},
		{name: "stale handle", err: unix.ESTALE, fatal: false, reached: true},
		{name: "operation not permitted", err: unix.EPERM, fatal: false, reached: true},
		{name: "io error", err: unix.EIO, fatal: true, reached: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeOps{
				mounts: testMounts(),
				failOn: map[string]error{"remount /sbx/proc": tt.err},
			}
			s := newTestSandbox(f)
			err := s.Setup()
			if tt.fatal {
				if !errors.Is(err, ErrMount) {
					t.Errorf("Setup() error = %v, want ErrMount", err)
				}
			} else if err != nil {
				t.Errorf("Setup() error = %v, want nil", err)
			}
			reached := false
			for _, call := range f.calls {
				if call == "chdir" {
					reached = true
				}
			}
			if reached != tt.reached {
				t.Errorf("reached chdir = %v, want %v (calls %v)", reached, tt.reached, f.calls)
			}
		})
	}
}
