package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineCode/yugabyte-db/config"
)

func execRoot(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSubcommandRunsWithoutConfig(t *testing.T) {
	called := false
	AddSubcommand(&Subcommand{
		Use:             "t-noconfig",
		NoRequireConfig: true,
		Run: func(s *Subcommand, args []string) error {
			called = true
			return nil
		},
	})
	require.NoError(t, execRoot(t, "t-noconfig"))
	assert.True(t, called)
}

func TestSubcommandFailsOnMissingConfig(t *testing.T) {
	AddSubcommand(&Subcommand{
		Use: "t-config-missing",
		Run: func(s *Subcommand, args []string) error {
			t.Fatal("must not run without a parsed config")
			return nil
		},
	})
	rootArgs.configPath = filepath.Join(t.TempDir(), "does-not-exist.yml")
	defer func() { rootArgs.configPath = "" }()
	assert.Error(t, execRoot(t, "t-config-missing"))
}

func TestSubcommandReceivesParsedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cqld.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:9042\n"), 0o600))

	var got *config.Config
	AddSubcommand(&Subcommand{
		Use: "t-config",
		Run: func(s *Subcommand, args []string) error {
			got = s.Config()
			return nil
		},
	})
	rootArgs.configPath = path
	defer func() { rootArgs.configPath = "" }()
	require.NoError(t, execRoot(t, "t-config"))
	require.NotNil(t, got)
	assert.Equal(t, "127.0.0.1:9042", got.Listen)
}

func TestConfigPanicsWhenNotLoaded(t *testing.T) {
	s := &Subcommand{Use: "t-panic"}
	assert.Panics(t, func() { s.Config() })
}
