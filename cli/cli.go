// Package cli builds the cqld command tree: a cobra root whose leaf
// subcommands share the --config flag and its parsed result.
package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lineCode/yugabyte-db/config"
)

var rootArgs struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:           "cqld",
	Short:         "CQL protocol front end for the distributed SQL engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configPath, "config", "", "config file path")
}

// Subcommand is one leaf command. Unless NoRequireConfig is set, the
// config file is parsed before Run and a parse failure aborts the
// command.
type Subcommand struct {
	Use             string
	Short           string
	NoRequireConfig bool
	Run             func(subcommand *Subcommand, args []string) error
	SetupFlags      func(f *pflag.FlagSet)

	config *config.Config
}

// Config returns the parsed configuration. It panics when called from
// a command that opted out of config loading.
func (s *Subcommand) Config() *config.Config {
	if !s.NoRequireConfig && s.config == nil {
		panic("command that requires config is running and has no config set")
	}
	return s.config
}

func AddSubcommand(s *Subcommand) {
	cmd := &cobra.Command{
		Use:   s.Use,
		Short: s.Short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !s.NoRequireConfig {
				conf, err := config.ParseConfig(rootArgs.configPath)
				if err != nil {
					return errors.Wrap(err, "could not parse config")
				}
				s.config = conf
			}
			return s.Run(s, args)
		},
	}
	if s.SetupFlags != nil {
		s.SetupFlags(cmd.Flags())
	}
	rootCmd.AddCommand(cmd)
}

func Run() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
