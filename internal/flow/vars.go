package flow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// placeholderPattern matches {name} and {scope.name}.
var placeholderPattern = regexp.MustCompile(`\{([a-z_]+(?:\.[a-z_]+)*)\}`)

// variableNamePattern is what SetVariable may define. Dotted names are
// reserved for live variables.
var variableNamePattern = regexp.MustCompile(`^[a-z_]+$`)

// LiveNames lists every placeholder Resolve can produce.
var LiveNames = []string{
	"user.id", "user.name", "user.mention",
	"member.nick", "member.display_name",
	"guild.id", "guild.name",
	"channel.id", "message.id",
}

// VariableNameValid reports whether SetVariable may define name.
func VariableNameValid(name string) bool {
	return variableNamePattern.MatchString(name)
}

// Placeholders returns the placeholder names referenced by s, in order of
// appearance.
func Placeholders(s string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

// Variables maps placeholder names to values. An absent name is unresolved.
type Variables map[string]string

// UnresolvedError lists placeholders that had no value.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved variables: %s", strings.Join(e.Names, ", "))
}

// Substitute replaces every placeholder in s. Text in braces that does not
// look like a placeholder is left alone.
func (v Variables) Substitute(s string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if val, ok := v[name]; ok {
			return val
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &UnresolvedError{Names: dedupe(missing)}
	}
	return out, nil
}

func (v Variables) clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Resolve builds the live variables for an interaction from fields already
// present in the payload. guild is optional; without it guild.name stays
// unresolved. Nothing here calls the platform.
func Resolve(i *discordgo.Interaction, guild *discordgo.Guild) Variables {
	vars := make(Variables)
	if i == nil {
		return vars
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user != nil {
		vars["user.id"] = user.ID
		vars["user.name"] = displayName(user)
		vars["user.mention"] = "<@" + user.ID + ">"
	}

	if i.Member != nil {
		if i.Member.Nick != "" {
			vars["member.nick"] = i.Member.Nick
		}
		switch {
		case i.Member.Nick != "":
			vars["member.display_name"] = i.Member.Nick
		case user != nil:
			vars["member.display_name"] = displayName(user)
		}
	}

	if i.GuildID != "" {
		vars["guild.id"] = i.GuildID
	}
	if guild != nil && guild.Name != "" {
		vars["guild.name"] = guild.Name
	}
	if i.ChannelID != "" {
		vars["channel.id"] = i.ChannelID
	}
	if i.Message != nil && i.Message.ID != "" {
		vars["message.id"] = i.Message.ID
	}
	return vars
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
