package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storefront", cmd.Use)
	assert.Contains(t, cmd.Long, "session database")
}

func TestCommandPresence(t *testing.T) {
	commands := [][]string{
		{"serve"}, {"signin"}, {"signup"}, {"signout"}, {"whoami"},
		{"cart", "show"}, {"cart", "count"}, {"cart", "add"}, {"cart", "remove"},
		{"cart", "update"}, {"cart", "clear"}, {"cart", "reload"},
		{"checkout"}, {"orders"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := NewRootCommand().Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
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
}

func TestCartAddFlags(t *testing.T) {
	addCmd, _, err := NewRootCommand().Find([]string{"cart", "add"})
	require.NoError(t, err)

	for _, name := range []string{"id", "name", "price", "image-url"} {
		assert.NotNil(t, addCmd.Flags().Lookup(name), name)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	wrapped := WrapExitError(ExitCommandError, "failed to load configuration", errors.New("missing"))
	assert.Equal(t, "failed to load configuration: missing", wrapped.Error())
	assert.False(t, Reported(wrapped))
}
