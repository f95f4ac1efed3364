package main

import (
	"github.com/lineCode/yugabyte-db/cli"
	"github.com/lineCode/yugabyte-db/client"
	"github.com/lineCode/yugabyte-db/daemon"
)

func init() {
	cli.AddSubcommand(daemon.DaemonCmd)
	cli.AddSubcommand(client.ConfigcheckCmd)
	cli.AddSubcommand(client.VersionCmd)
}

func main() {
	cli.Run()
}
