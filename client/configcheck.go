package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/pflag"
	"github.com/zrepl/yaml-config"

	"github.com/lineCode/yugabyte-db/cli"
)

var configcheckArgs struct {
	format string
}

var ConfigcheckCmd = &cli.Subcommand{
	Use:   "configcheck",
	Short: "check if config can be parsed without errors",
	SetupFlags: func(f *pflag.FlagSet) {
		f.StringVar(&configcheckArgs.format, "format", "", "dump parsed config object [pretty|yaml|json]")
	},
	Run: func(subcommand *cli.Subcommand, args []string) error {
		conf := subcommand.Config()
		switch configcheckArgs.format {
		case "":
		case "pretty":
			if _, err := pretty.Println(conf); err != nil {
				return err
			}
		case "json":
			if err := json.NewEncoder(os.Stdout).Encode(conf); err != nil {
				return err
			}
		case "yaml":
			if err := yaml.NewEncoder(os.Stdout).Encode(conf); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported --format %q", configcheckArgs.format)
		}
		return nil
	},
}
