package client

import (
	"fmt"

	"github.com/lineCode/yugabyte-db/cli"
	"github.com/lineCode/yugabyte-db/version"
)

var VersionCmd = &cli.Subcommand{
	Use:             "version",
	Short:           "print version of this binary",
	NoRequireConfig: true,
	Run: func(subcommand *cli.Subcommand, args []string) error {
		fmt.Println(version.Get().String())
		return nil
	},
}
