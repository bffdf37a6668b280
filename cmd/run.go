package cmd

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/mlz-ictrl/nicos-sandbox/consts"
	"github.com/mlz-ictrl/nicos-sandbox/sandbox"
)

// Run is the app's default action: build the sandbox around the current
// process and exec the target binary inside it. Arguments are validated
// before the first privileged call; after that every failure is fatal and
// the half-built namespace simply dies with the process.
func Run(context *cli.Context) error {
	args := context.Args()
	if len(args) < consts.MIN_ARGS {
		return fmt.Errorf("usage: %s rootdir uid gid binary [args...]: %w",
			context.App.Name, sandbox.ErrArgument)
	}
	rootDir := args.Get(0)
	uid, err := sandbox.ParseID("user", args.Get(1))
	if err != nil {
		return err
	}
	gid, err := sandbox.ParseID("group", args.Get(2))
	if err != nil {
		return err
	}
	binary := args.Get(3)

	// unshare applies to the calling thread only; pin it so the whole
	// sequence through exec stays on the isolated thread.
	runtime.LockOSThread()

	sbx := sandbox.New(rootDir, uid, gid, binary, args[consts.MIN_ARGS:])
	if err := sbx.Setup(); err != nil {
		return err
	}
	logrus.Debugf("sandbox ready, exec %s", binary)
	return sbx.Exec()
}
