package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "grandr", cmd.Use)
	assert.Contains(t, cmd.Long, "reproducibility")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "asset", "audit", "cache"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "grandr.yaml", configFlag.DefValue)
}

func TestAssetSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"write", "export", "list"} {
		sub, _, err := cmd.Find([]string{"asset", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	writeCmd, _, err := cmd.Find([]string{"asset", "write"})
	require.NoError(t, err)
	strictFlag := writeCmd.Flags().Lookup("strict")
	require.NotNil(t, strictFlag)
	assert.Equal(t, "false", strictFlag.DefValue)

	exportCmd, _, err := cmd.Find([]string{"asset", "export"})
	require.NoError(t, err)
	versionFlag := exportCmd.Flags().Lookup("version")
	require.NotNil(t, versionFlag)
	assert.Equal(t, "0", versionFlag.DefValue)
}

func TestAuditListFlags(t *testing.T) {
	cmd := NewRootCommand()
	listCmd, _, err := cmd.Find([]string{"audit", "list"})
	require.NoError(t, err)

	for _, name := range []string{"fingerprint", "since-seq", "until-seq"} {
		assert.NotNil(t, listCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "audit", "list"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
