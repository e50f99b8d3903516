package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/config"
	"github.com/roach88/interflow/internal/platform"
	"github.com/roach88/interflow/internal/testutil"
)

func recordPlatform(t *testing.T) *testutil.Platform {
	t.Helper()
	p := testutil.NewPlatform()
	orig := newPlatform
	newPlatform = func(config.DiscordConfig) (platform.Client, error) { return p, nil }
	t.Cleanup(func() { newPlatform = orig })
	return p
}

func TestReactionRolePostsSetupButton(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvPrefix+"DISCORD_TOKEN", "bot-token")
	p := recordPlatform(t)

	out, err := execute(t, "reaction-role", "42", "1100000000000000001", "✨")
	require.NoError(t, err)
	assert.Equal(t, "posted setup message sent-1 in channel 42\n", out)
	assert.Equal(t, []string{
		`send_message 42 "Set up a reaction role for ✨ on message 1100000000000000001." [a_reaction-role-start_1100000000000000001:✨]`,
	}, p.Calls())
}

func TestReactionRoleRefusesCustomEmoji(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvPrefix+"DISCORD_TOKEN", "bot-token")
	p := recordPlatform(t)

	_, err := execute(t, "reaction-role", "42", "1100000000000000001", "party:1234")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeMalformedID)
	assert.Empty(t, p.Calls())
}

func TestReactionRoleNeedsToken(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvPrefix+"DISCORD_TOKEN", "")
	p := recordPlatform(t)

	_, err := execute(t, "reaction-role", "42", "1100000000000000001", "✨")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, p.Calls())
}
