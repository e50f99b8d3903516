package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReactionRole binds a reaction on a message to a role.
type ReactionRole struct {
	MessageID string
	Reaction  string
	RoleID    string
}

// PutReactionRole creates or replaces a binding.
func (s *Store) PutReactionRole(ctx context.Context, rr ReactionRole) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO reaction_roles (message_id, reaction, role_id) VALUES (?, ?, ?)
		ON CONFLICT (message_id, reaction) DO UPDATE SET role_id = excluded.role_id
	`), rr.MessageID, rr.Reaction, rr.RoleID)
	if err != nil {
		return fmt.Errorf("put reaction role: %w", err)
	}
	return nil
}

// GetReactionRole returns the binding or ErrNotFound.
func (s *Store) GetReactionRole(ctx context.Context, messageID, reaction string) (ReactionRole, error) {
	rr := ReactionRole{MessageID: messageID, Reaction: reaction}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT role_id FROM reaction_roles WHERE message_id = ? AND reaction = ?
	`), messageID, reaction).Scan(&rr.RoleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReactionRole{}, fmt.Errorf("reaction role %s on %s: %w", reaction, messageID, ErrNotFound)
	}
	if err != nil {
		return ReactionRole{}, fmt.Errorf("get reaction role: %w", err)
	}
	return rr, nil
}

// DeleteReactionRole removes a binding. Returns ErrNotFound if none existed.
func (s *Store) DeleteReactionRole(ctx context.Context, messageID, reaction string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM reaction_roles WHERE message_id = ? AND reaction = ?
	`), messageID, reaction)
	if err != nil {
		return fmt.Errorf("delete reaction role: %w", err)
	}
	return expectRow(res, fmt.Sprintf("reaction role %s on %s", reaction, messageID))
}
