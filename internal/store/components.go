package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/interflow/internal/model"
)

const componentColumns = `id, guild_id, channel_id, message_id, type, data, draft, premium`

// FindComponent returns the component with its flows and their actions
// joined in. Returns ErrNotFound if no such component exists.
func (s *Store) FindComponent(ctx context.Context, id uint64) (*model.ComponentState, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+componentColumns+`
		FROM components
		WHERE id = ?
	`), int64(id))

	state, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if state.Flows, err = s.loadFlows(ctx, id); err != nil {
		return nil, err
	}
	return state, nil
}

// FindComponentsByMessage returns every component attached to a message,
// ordered by id. Returns an empty slice (not nil) when there are none.
func (s *Store) FindComponentsByMessage(ctx context.Context, messageID string) ([]*model.ComponentState, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+componentColumns+`
		FROM components
		WHERE message_id = ?
		ORDER BY id ASC
	`), messageID)
	if err != nil {
		return nil, fmt.Errorf("query components by message: %w", err)
	}

	states := []*model.ComponentState{}
	for rows.Next() {
		st, err := scanComponent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate components: %w", err)
	}
	rows.Close()

	for _, st := range states {
		if st.Flows, err = s.loadFlows(ctx, st.ID); err != nil {
			return nil, err
		}
	}
	return states, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(r rowScanner) (*model.ComponentState, error) {
	var (
		id                          int64
		guildID, channelID, message sql.NullString
		kind                        int
		data                        string
		draft, premium              bool
	)
	if err := r.Scan(&id, &guildID, &channelID, &message, &kind, &data, &draft, &premium); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan component: %w", err)
	}

	var cd model.ComponentData
	if err := json.Unmarshal([]byte(data), &cd); err != nil {
		return nil, fmt.Errorf("component %d: decode data: %w", id, err)
	}
	if cd.Component != nil && int(cd.Kind()) != kind {
		return nil, fmt.Errorf("component %d: type column %d disagrees with data type %d", id, kind, cd.Kind())
	}

	return &model.ComponentState{
		ID:        uint64(id),
		GuildID:   guildID.String,
		ChannelID: channelID.String,
		MessageID: message.String,
		Draft:     draft,
		Premium:   premium,
		Data:      cd,
	}, nil
}

// loadFlows joins flows and actions for a component. Flows are ordered by
// id, actions by position.
func (s *Store) loadFlows(ctx context.Context, componentID uint64) ([]model.Flow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT f.id, f.name, a.position, a.data
		FROM components_to_flows cf
		JOIN flows f ON f.id = cf.flow_id
		LEFT JOIN flow_actions a ON a.flow_id = f.id
		WHERE cf.component_id = ?
		ORDER BY f.id ASC, a.position ASC
	`), int64(componentID))
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []model.Flow{}
	for rows.Next() {
		var (
			flowID   int64
			name     sql.NullString
			position sql.NullInt64
			data     sql.NullString
		)
		if err := rows.Scan(&flowID, &name, &position, &data); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}

		if len(flows) == 0 || flows[len(flows)-1].ID != uint64(flowID) {
			flows = append(flows, model.Flow{
				ID:      uint64(flowID),
				Name:    name.String,
				Actions: model.Actions{},
			})
		}
		if !data.Valid {
			continue
		}

		action, err := model.DecodeAction([]byte(data.String))
		if err != nil {
			return nil, fmt.Errorf("flow %d action %d: %w", flowID, position.Int64, err)
		}
		last := &flows[len(flows)-1]
		last.Actions = append(last.Actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return flows, nil
}

// SaveComponent upserts a component and replaces its flows in one
// transaction. createdByID is only written on insert.
func (s *Store) SaveComponent(ctx context.Context, st *model.ComponentState, createdByID string) error {
	if st.ID == 0 {
		return errors.New("save component: id is zero")
	}
	if st.Data.Component == nil {
		return fmt.Errorf("save component %d: no component data", st.ID)
	}
	data, err := json.Marshal(st.Data)
	if err != nil {
		return fmt.Errorf("save component %d: encode data: %w", st.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO components (id, guild_id, channel_id, message_id, created_by_id, type, data, draft, premium, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			message_id = excluded.message_id,
			type = excluded.type,
			data = excluded.data,
			draft = excluded.draft,
			premium = excluded.premium,
			updated_at = excluded.updated_at
	`), int64(st.ID), nullable(st.GuildID), nullable(st.ChannelID), nullable(st.MessageID),
		nullable(createdByID), int(st.Data.Kind()), string(data), st.Draft, st.Premium, now, now)
	if err != nil {
		return fmt.Errorf("upsert component %d: %w", st.ID, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM components_to_flows WHERE component_id = ?`), int64(st.ID)); err != nil {
		return fmt.Errorf("unlink flows: %w", err)
	}

	for _, f := range st.Flows {
		if err := s.saveFlow(ctx, tx, f); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO components_to_flows (component_id, flow_id) VALUES (?, ?)
		`), int64(st.ID), int64(f.ID)); err != nil {
			return fmt.Errorf("link flow %d: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) saveFlow(ctx context.Context, tx *sql.Tx, f model.Flow) error {
	if f.ID == 0 {
		return errors.New("save flow: id is zero")
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO flows (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`), int64(f.ID), nullable(f.Name)); err != nil {
		return fmt.Errorf("upsert flow %d: %w", f.ID, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM flow_actions WHERE flow_id = ?`), int64(f.ID)); err != nil {
		return fmt.Errorf("clear actions of flow %d: %w", f.ID, err)
	}

	for i, a := range f.Actions {
		data, err := model.EncodeAction(a)
		if err != nil {
			return fmt.Errorf("flow %d action %d: encode: %w", f.ID, i, err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO flow_actions (flow_id, position, type, data) VALUES (?, ?, ?, ?)
		`), int64(f.ID), i, int(a.Type()), string(data)); err != nil {
			return fmt.Errorf("insert flow %d action %d: %w", f.ID, i, err)
		}
	}
	return nil
}

// SetDraft flips the draft flag. Returns ErrNotFound if no row changed.
func (s *Store) SetDraft(ctx context.Context, id uint64, draft bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE components SET draft = ?, updated_at = ? WHERE id = ?
	`), draft, s.now().UnixMilli(), int64(id))
	if err != nil {
		return fmt.Errorf("set draft on %d: %w", id, err)
	}
	return expectRow(res, fmt.Sprintf("component %d", id))
}

// AttachToMessage records the message a component was posted on and marks it
// live (not draft).
func (s *Store) AttachToMessage(ctx context.Context, id uint64, guildID, channelID, messageID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE components
		SET guild_id = ?, channel_id = ?, message_id = ?, draft = ?, updated_at = ?
		WHERE id = ?
	`), nullable(guildID), nullable(channelID), messageID, false, s.now().UnixMilli(), int64(id))
	if err != nil {
		return fmt.Errorf("attach component %d: %w", id, err)
	}
	return expectRow(res, fmt.Sprintf("component %d", id))
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
