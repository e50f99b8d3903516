package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComponentState is the canonical record a component actor holds: the
// component, its draft flag and its flows with actions joined in, plus the
// invocation bookkeeping only the actor maintains.
type ComponentState struct {
	ID        uint64        `json:"id,string"`
	GuildID   string        `json:"guildId,omitempty"`
	ChannelID string        `json:"channelId,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Draft     bool          `json:"draft"`
	Premium   bool          `json:"premium,omitempty"`
	Data      ComponentData `json:"data"`
	Flows     []Flow        `json:"flows"`

	Invocations     int64      `json:"invocations"`
	FirstInvokedAt  *time.Time `json:"firstInvokedAt,omitempty"`
	LastInvokedAt   *time.Time `json:"lastInvokedAt,omitempty"`
	LastInvokedByID string     `json:"lastInvokedById,omitempty"`
}

// Flow returns the attached flow with the given id.
func (s *ComponentState) Flow(id uint64) (Flow, bool) {
	for _, f := range s.Flows {
		if f.ID == id {
			return f, true
		}
	}
	return Flow{}, false
}

// SelectFlows picks the flows a callback should run.
//
//   - A callback whose component type differs from the stored kind runs none.
//   - Link buttons and disabled components run none.
//   - A button or platform-populated select runs its single flow.
//   - A string select runs the flows bound to the selected values, in
//     selection order, each at most once.
//
// Flow ids referencing flows that are not attached are ignored.
func (s *ComponentState) SelectFlows(kind Kind, values []string) []Flow {
	if s.Data.Component == nil || s.Data.Kind() != kind {
		return nil
	}

	var ids []uint64
	switch c := s.Data.Component.(type) {
	case Button:
		if c.IsLink() || c.Disabled {
			return nil
		}
		ids = c.FlowIDs()
	case StringSelect:
		if c.Disabled {
			return nil
		}
		seen := make(map[uint64]bool, len(values))
		for _, v := range values {
			if id, ok := c.FlowForValue(v); ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	case AutoSelect:
		if c.Disabled {
			return nil
		}
		ids = c.FlowIDs()
	}

	out := make([]Flow, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.Flow(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// RecordInvocation updates bookkeeping for one resolved callback.
func (s *ComponentState) RecordInvocation(userID string, at time.Time) {
	at = at.UTC()
	s.Invocations++
	if s.FirstInvokedAt == nil {
		first := at
		s.FirstInvokedAt = &first
	}
	s.LastInvokedAt = &at
	s.LastInvokedByID = userID
}

// KeepInvocations copies the bookkeeping from prev, which the relational
// store does not hold.
func (s *ComponentState) KeepInvocations(prev *ComponentState) {
	s.Invocations = prev.Invocations
	s.FirstInvokedAt = prev.FirstInvokedAt
	s.LastInvokedAt = prev.LastInvokedAt
	s.LastInvokedByID = prev.LastInvokedByID
}

// Revision is a content hash of the canonical encoding. Strings are NFC
// normalized before hashing, so it identifies content, not bytes.
func (s *ComponentState) Revision() (string, error) {
	b, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("revision: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16]), nil
}

// Clone returns a deep copy. Actors hand out clones so callers can never
// mutate held state.
func (s *ComponentState) Clone() *ComponentState {
	if s == nil {
		return nil
	}
	out := *s

	switch c := s.Data.Component.(type) {
	case StringSelect:
		c.Options = append([]SelectOption(nil), c.Options...)
		out.Data = ComponentData{Component: c}
	}

	if s.Flows != nil {
		out.Flows = make([]Flow, len(s.Flows))
		for i, f := range s.Flows {
			if f.Actions != nil {
				f.Actions = append(Actions{}, f.Actions...)
			}
			out.Flows[i] = f
		}
	}
	if s.FirstInvokedAt != nil {
		t := *s.FirstInvokedAt
		out.FirstInvokedAt = &t
	}
	if s.LastInvokedAt != nil {
		t := *s.LastInvokedAt
		out.LastInvokedAt = &t
	}
	return &out
}
