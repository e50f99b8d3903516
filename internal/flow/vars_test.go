package flow

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	vars := Variables{"user.id": "42", "greeting": "hi"}

	tests := []struct {
		name    string
		in      string
		want    string
		missing []string
	}{
		{name: "plain text", in: "hello", want: "hello"},
		{name: "single", in: "<@{user.id}>", want: "<@42>"},
		{name: "local variable", in: "{greeting} {greeting}", want: "hi hi"},
		{name: "non placeholder braces", in: "{ not one } {Upper} {}", want: "{ not one } {Upper} {}"},
		{name: "unresolved", in: "{guild.name} {user.id} {guild.name} {channel.id}", missing: []string{"channel.id", "guild.name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vars.Substitute(tt.in)
			if tt.missing != nil {
				var unresolved *UnresolvedError
				require.ErrorAs(t, err, &unresolved)
				assert.Equal(t, tt.missing, unresolved.Names)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveGuildMember(t *testing.T) {
	i := &discordgo.Interaction{
		GuildID:   "g1",
		ChannelID: "c1",
		Message:   &discordgo.Message{ID: "m1"},
		Member: &discordgo.Member{
			Nick: "Countess",
			User: &discordgo.User{ID: "u1", Username: "ada", GlobalName: "Ada L"},
		},
	}

	vars := Resolve(i, &discordgo.Guild{ID: "g1", Name: "Engines"})

	assert.Equal(t, Variables{
		"user.id":             "u1",
		"user.name":           "Ada L",
		"user.mention":        "<@u1>",
		"member.nick":         "Countess",
		"member.display_name": "Countess",
		"guild.id":            "g1",
		"guild.name":          "Engines",
		"channel.id":          "c1",
		"message.id":          "m1",
	}, vars)
}

func TestResolveDirectMessage(t *testing.T) {
	i := &discordgo.Interaction{
		ChannelID: "dm1",
		User:      &discordgo.User{ID: "u1", Username: "ada"},
	}

	vars := Resolve(i, nil)

	assert.Equal(t, "ada", vars["user.name"])
	for _, name := range []string{"guild.id", "guild.name", "member.nick", "member.display_name", "message.id"} {
		_, ok := vars[name]
		assert.False(t, ok, name)
	}
}

func TestResolveNil(t *testing.T) {
	assert.Empty(t, Resolve(nil, nil))
}

func TestNewLive(t *testing.T) {
	i := &discordgo.Interaction{
		AppID:   "app",
		Token:   "tok",
		GuildID: "g1",
		Member: &discordgo.Member{
			Roles: []string{"r1"},
			User:  &discordgo.User{ID: "u1", Username: "ada"},
		},
	}

	live := NewLive(i, nil)

	assert.Equal(t, "u1", live.UserID)
	assert.Equal(t, []string{"r1"}, live.MemberRoles)
	assert.Equal(t, "tok", live.Interaction.Token)

	live.MemberRoles[0] = "changed"
	assert.Equal(t, "r1", i.Member.Roles[0], "live context must not alias the payload")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"user.id", "greeting", "user.id"}, Placeholders("{user.id} {greeting} {x y} {user.id}"))
	assert.Nil(t, Placeholders("none"))
}

func TestLiveNamesCoverResolve(t *testing.T) {
	i := &discordgo.Interaction{
		GuildID:   "g",
		ChannelID: "c",
		Message:   &discordgo.Message{ID: "m"},
		Member:    &discordgo.Member{Nick: "n", User: &discordgo.User{ID: "u", Username: "x"}},
	}
	vars := Resolve(i, &discordgo.Guild{Name: "G"})
	for name := range vars {
		assert.Contains(t, LiveNames, name)
	}
	assert.Len(t, vars, len(LiveNames))
}
