package daemon

import (
	"context"

	"github.com/lineCode/yugabyte-db/cli"
)

var DaemonCmd = &cli.Subcommand{
	Use:   "daemon",
	Short: "run the cqld daemon",
	Run: func(subcommand *cli.Subcommand, args []string) error {
		return Run(context.Background(), subcommand.Config())
	},
}
