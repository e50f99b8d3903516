package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/interflow/internal/platform"
)

// Platform is a platform.Client that records every call as a single line,
// e.g. "add_role g1 u1 r1", so tests can assert on exact call sequences.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Platform struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	nextID   int
}

var _ platform.Client = (*Platform)(nil)

// NewPlatform creates an empty recorder.
func NewPlatform() *Platform {
	return &Platform{failures: make(map[string]error)}
}

// FailOn makes any call whose recorded line starts with prefix return err.
// The call is still recorded.
func (p *Platform) FailOn(prefix string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[prefix] = err
}

// Calls returns a copy of the recorded call lines.
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Platform) record(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, line)
	for prefix, err := range p.failures {
		if strings.HasPrefix(line, prefix) {
			return &platform.APIError{Op: strings.Fields(line)[0], Err: err}
		}
	}
	return nil
}

func (p *Platform) AddRole(_ context.Context, guildID, userID, roleID string) error {
	return p.record("add_role %s %s %s", guildID, userID, roleID)
}

func (p *Platform) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	return p.record("remove_role %s %s %s", guildID, userID, roleID)
}

func (p *Platform) SendMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	if err := p.record("send_message %s %q%s", channelID, msg.Content, customIDs(msg.Components)); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return fmt.Sprintf("sent-%d", p.nextID), nil
}

func (p *Platform) Followup(_ context.Context, ref platform.InteractionRef, msg platform.Message) error {
	return p.record("followup %s ephemeral=%t %q", ref.Token, msg.Ephemeral, msg.Content)
}

func (p *Platform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return p.record("delete_message %s %s", channelID, messageID)
}

func (p *Platform) DeleteReaction(_ context.Context, channelID, messageID, emoji string) error {
	return p.record("delete_reaction %s %s %s", channelID, messageID, emoji)
}

// customIDs renders the custom ids of buttons in rows as " [id ...]".
func customIDs(rows []discordgo.MessageComponent) string {
	var out []string
	for _, row := range rows {
		r, ok := row.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range r.Components {
			if b, ok := c.(discordgo.Button); ok {
				out = append(out, b.CustomID)
			}
		}
	}
	if len(out) == 0 {
		return ""
	}
	return " [" + strings.Join(out, " ") + "]"
}
