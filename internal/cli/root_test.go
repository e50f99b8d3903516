package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "interflow", root.Use)
	assert.Contains(t, root.Long, "custom identifier")
}

func TestSubcommands(t *testing.T) {
	want := map[string][]string{
		"serve":         {"config", "addr"},
		"decode":        {"message", "component-type"},
		"validate":      {"premium", "max-actions"},
		"import":        {"db", "driver", "created-by", "actors"},
		"attach":        {"db", "driver", "actors", "guild", "channel"},
		"publish":       {"db", "driver", "actors", "draft"},
		"components":    {"db", "driver"},
		"address":       nil,
		"reaction-role": {"config"},
	}

	root := NewRootCommand()
	for name, flags := range want {
		t.Run(name, func(t *testing.T) {
			sub, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
			for _, flag := range flags {
				assert.NotNil(t, sub.Flags().Lookup(flag), "--%s", flag)
			}
		})
	}
}

func TestPersistentFlags(t *testing.T) {
	flags := NewRootCommand().PersistentFlags()

	verbose := flags.Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := flags.Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "yaml", "decode", "t_abc"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad args")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitFailure, "failed", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "failed: "+assert.AnError.Error(), wrapped.Error())
}
