package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fixity", cmd.Use)
	assert.Contains(t, cmd.Long, "SPARQL endpoint")
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"census"},
		{"hash"},
		{"reconcile"},
		{"integrity"},
		{"health"},
		{"history"},
		{"history", "show"},
		{"history", "drift"},
		{"config", "show"},
		{"config", "validate"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
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
	assert.Equal(t, "c", configFlag.Shorthand)

	logFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFlag)
	assert.Equal(t, "console", logFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("ledger"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("no-ledger"))
}

func TestCensusCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	censusCmd, _, err := cmd.Find([]string{"census"})
	require.NoError(t, err)

	outputFlag := censusCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	directFlag := censusCmd.Flags().Lookup("direct")
	require.NotNil(t, directFlag)
	assert.Equal(t, "false", directFlag.DefValue)
}

func TestHashCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	hashCmd, _, err := cmd.Find([]string{"hash"})
	require.NoError(t, err)

	workersFlag := hashCmd.Flags().Lookup("workers")
	require.NotNil(t, workersFlag)
	assert.Equal(t, "w", workersFlag.Shorthand)
	assert.Equal(t, "0", workersFlag.DefValue)

	require.NotNil(t, hashCmd.Flags().Lookup("file-timeout"))
	require.NotNil(t, hashCmd.Flags().Lookup("digester"))
}

func TestGraphCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"reconcile", "integrity", "health"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			for _, flag := range []string{"endpoint", "root-id", "graph-uri"} {
				assert.NotNil(t, sub.Flags().Lookup(flag), "--%s", flag)
			}
		})
	}

	reconcileCmd, _, err := cmd.Find([]string{"reconcile"})
	require.NoError(t, err)
	zeroFlag := reconcileCmd.Flags().Lookup("include-zero-paths")
	require.NotNil(t, zeroFlag)
	assert.Equal(t, "false", zeroFlag.DefValue)

	integrityCmd, _, err := cmd.Find([]string{"integrity"})
	require.NoError(t, err)
	limitFlag := integrityCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLogFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--log-format", "xml", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
