package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "aegis", cmd.Use, "Root command should be 'aegis'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 3, "Should have 3 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")
	assert.True(t, commandNames["reload"], "Should have 'reload' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "", configFlag.DefValue, "Default config path should be empty (built-in defaults)")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd, "buildStatusCommand should return a non-nil command")
	assert.Equal(t, "status", cmd.Use, "Command should be 'status'")
	assert.Contains(t, cmd.Short, "status", "Short description should mention 'status'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildReloadCommand(t *testing.T) {
	cmd := buildReloadCommand()

	assert.NotNil(t, cmd, "buildReloadCommand should return a non-nil command")
	assert.Equal(t, "reload <model>", cmd.Use, "Command should be 'reload <model>'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
	assert.Error(t, cmd.Args(cmd, nil), "reload requires exactly one argument")
	assert.Error(t, cmd.Args(cmd, []string{"A", "B"}), "reload rejects more than one argument")
	assert.NoError(t, cmd.Args(cmd, []string{"ORDER"}), "reload accepts exactly one model name")
}

func TestShowStatusWithNoLivePools(t *testing.T) {
	// An empty Supervisor (built-in defaults, no submitted jobs yet) has
	// no live pools; showStatus should report that rather than error.
	err := showStatus(context.Background())
	assert.NoError(t, err, "showStatus should not error when no pools are live")
}
