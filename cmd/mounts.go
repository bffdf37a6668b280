package cmd

import (
	"fmt"
	"os"

	"github.com/moby/sys/mountinfo"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/mlz-ictrl/nicos-sandbox/sandbox"
)

// MountsCommand previews the read-only enforcement for a sandbox root
// without mounting anything: same live snapshot, same decision logic as the
// privileged path, so an operator can inspect a sandbox layout before
// granting setuid.
var MountsCommand = cli.Command{
	Name:      "mounts",
	Usage:     "show what the sandbox would do to each mount under rootdir, eg: mounts /tmp/sbx",
	ArgsUsage: "rootdir",
	Action: func(context *cli.Context) error {
		if len(context.Args()) < 1 {
			return fmt.Errorf("usage: %s mounts rootdir: %w", context.App.Name, sandbox.ErrArgument)
		}
		rootDir := context.Args().Get(0)
		mounts, err := mountinfo.GetMounts(nil)
		if err != nil {
			return fmt.Errorf("mounts: %w", err)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Mountpoint", "Type", "Options", "Action"})
		for _, m := range mounts {
			action := sandbox.Classify(m, rootDir)
			if action == sandbox.ActionIgnore {
				continue
			}
			table.Append([]string{m.Mountpoint, m.FSType, m.Options, action.String()})
		}
		table.Render()
		return nil
	},
}
