package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the platform component type. Values match the platform's wire
// numbering so a callback's component_type compares directly.
type Kind int

const (
	KindButton            Kind = 2
	KindStringSelect      Kind = 3
	KindUserSelect        Kind = 5
	KindRoleSelect        Kind = 6
	KindMentionableSelect Kind = 7
	KindChannelSelect     Kind = 8
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindStringSelect:
		return "string_select"
	case KindUserSelect:
		return "user_select"
	case KindRoleSelect:
		return "role_select"
	case KindMentionableSelect:
		return "mentionable_select"
	case KindChannelSelect:
		return "channel_select"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ButtonStyleLink is the style of buttons that open a URL. Link buttons never
// produce callbacks and so never run flows.
const ButtonStyleLink = 5

// ErrUnknownTag is wrapped when a tagged payload carries a type this package
// does not know.
var ErrUnknownTag = errors.New("unknown type tag")

// Component is one of Button, StringSelect or AutoSelect.
type Component interface {
	Kind() Kind
	// FlowIDs lists every flow the component references, in declaration order.
	FlowIDs() []uint64
	sealedComponent()
}

// Button is a clickable button with at most one flow.
type Button struct {
	Style    int    `json:"style"`
	Label    string `json:"label,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	URL      string `json:"url,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	FlowID   uint64 `json:"flowId,string,omitempty"`
}

func (Button) Kind() Kind { return KindButton }
func (Button) sealedComponent() {}
func (b Button) IsLink() bool { return b.Style == ButtonStyleLink }
func (b Button) FlowIDs() []uint64 {
	if b.FlowID == 0 {
		return nil
	}
	return []uint64{b.FlowID}
}

// SelectOption is one option of a string select. Each option binds its own
// flow.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	FlowID      uint64 `json:"flowId,string,omitempty"`
}

// StringSelect is a menu of author-defined options.
type StringSelect struct {
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   int            `json:"minValues,omitempty"`
	MaxValues   int            `json:"maxValues,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Options     []SelectOption `json:"options"`
}

func (StringSelect) Kind() Kind { return KindStringSelect }
func (StringSelect) sealedComponent() {}
func (s StringSelect) FlowIDs() []uint64 {
	var out []uint64
	for _, o := range s.Options {
		if o.FlowID != 0 {
			out = append(out, o.FlowID)
		}
	}
	return out
}

// FlowForValue returns the flow bound to an option value.
func (s StringSelect) FlowForValue(value string) (uint64, bool) {
	for _, o := range s.Options {
		if o.Value == value && o.FlowID != 0 {
			return o.FlowID, true
		}
	}
	return 0, false
}

// AutoSelect is a platform-populated menu (users, roles, mentionables or
// channels). Any selection runs the single bound flow.
type AutoSelect struct {
	SelectKind  Kind   `json:"-"`
	Placeholder string `json:"placeholder,omitempty"`
	MinValues   int    `json:"minValues,omitempty"`
	MaxValues   int    `json:"maxValues,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
	FlowID      uint64 `json:"flowId,string,omitempty"`
}

func (a AutoSelect) Kind() Kind { return a.SelectKind }
func (AutoSelect) sealedComponent() {}
func (a AutoSelect) FlowIDs() []uint64 {
	if a.FlowID == 0 {
		return nil
	}
	return []uint64{a.FlowID}
}

// ComponentData wraps a Component for JSON, adding and checking the "type"
// tag.
type ComponentData struct {
	Component
}

type tagOnly struct {
	Type *int `json:"type"`
}

// UnmarshalJSON validates the tag, then decodes the kind-specific fields.
func (d *ComponentData) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		d.Component = nil
		return nil
	}
	c, err := DecodeComponent(data)
	if err != nil {
		return err
	}
	d.Component = c
	return nil
}

// MarshalJSON renders the component with its "type" tag.
func (d ComponentData) MarshalJSON() ([]byte, error) {
	if d.Component == nil {
		return []byte("null"), nil
	}
	return withTag(int(d.Component.Kind()), d.Component)
}

// DecodeComponent decodes a tagged component payload.
func DecodeComponent(data []byte) (Component, error) {
	var tag tagOnly
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to read component tag: %w", err)
	}
	if tag.Type == nil {
		return nil, fmt.Errorf("component: missing type tag: %w", ErrUnknownTag)
	}

	switch k := Kind(*tag.Type); k {
	case KindButton:
		var b Button
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("failed to decode button: %w", err)
		}
		return b, nil
	case KindStringSelect:
		var s StringSelect
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode string select: %w", err)
		}
		return s, nil
	case KindUserSelect, KindRoleSelect, KindMentionableSelect, KindChannelSelect:
		var a AutoSelect
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		a.SelectKind = k
		return a, nil
	default:
		return nil, fmt.Errorf("component type %d: %w", *tag.Type, ErrUnknownTag)
	}
}

// withTag marshals v as an object and prepends "type".
func withTag(tag int, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%d", tag))
	return json.Marshal(fields)
}
