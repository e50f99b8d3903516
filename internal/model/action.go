package model

import (
	"encoding/json"
	"fmt"
)

// ActionType is the numeric tag of a flow action. Tags 2, 8 and 9 belong to
// action kinds this engine does not execute; decoding them fails closed.
type ActionType int

const (
	ActionDud           ActionType = 0
	ActionWait          ActionType = 1
	ActionSetVariable   ActionType = 3
	ActionAddRole       ActionType = 4
	ActionRemoveRole    ActionType = 5
	ActionToggleRole    ActionType = 6
	ActionSendMessage   ActionType = 7
	ActionDeleteMessage ActionType = 10
	ActionStop          ActionType = 11
)

func (t ActionType) String() string {
	switch t {
	case ActionDud:
		return "dud"
	case ActionWait:
		return "wait"
	case ActionSetVariable:
		return "set_variable"
	case ActionAddRole:
		return "add_role"
	case ActionRemoveRole:
		return "remove_role"
	case ActionToggleRole:
		return "toggle_role"
	case ActionSendMessage:
		return "send_message"
	case ActionDeleteMessage:
		return "delete_message"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("action(%d)", int(t))
	}
}

// Action is one step of a flow.
type Action interface {
	Type() ActionType
	sealedAction()
}

// Dud does nothing. Editors use it as a placeholder.
type Dud struct{}

// Wait pauses the flow. The interpreter caps the duration.
type Wait struct {
	Seconds int `json:"seconds"`
}

// SetVariable binds a flow-local variable for later placeholders.
type SetVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AddRole grants a role to the invoking member.
type AddRole struct {
	RoleID string `json:"roleId"`
}

// RemoveRole revokes a role from the invoking member.
type RemoveRole struct {
	RoleID string `json:"roleId"`
}

// ToggleRole grants the role if the member lacks it, otherwise revokes it.
type ToggleRole struct {
	RoleID string `json:"roleId"`
}

// SendMessage posts a message. With Response set it is sent as a followup to
// the interaction, otherwise to ChannelID (default: the interaction channel).
type SendMessage struct {
	Content   string `json:"content"`
	ChannelID string `json:"channelId,omitempty"`
	Response  bool   `json:"response,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// DeleteMessage deletes a message (default: the message carrying the
// component).
type DeleteMessage struct {
	ChannelID string `json:"channelId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Stop ends the flow. Message, when set, is sent as an ephemeral followup.
type Stop struct {
	Message string `json:"message,omitempty"`
}

func (Dud) Type() ActionType           { return ActionDud }
func (Wait) Type() ActionType          { return ActionWait }
func (SetVariable) Type() ActionType   { return ActionSetVariable }
func (AddRole) Type() ActionType       { return ActionAddRole }
func (RemoveRole) Type() ActionType    { return ActionRemoveRole }
func (ToggleRole) Type() ActionType    { return ActionToggleRole }
func (SendMessage) Type() ActionType   { return ActionSendMessage }
func (DeleteMessage) Type() ActionType { return ActionDeleteMessage }
func (Stop) Type() ActionType          { return ActionStop }

func (Dud) sealedAction()           {}
func (Wait) sealedAction()          {}
func (SetVariable) sealedAction()   {}
func (AddRole) sealedAction()       {}
func (RemoveRole) sealedAction()    {}
func (ToggleRole) sealedAction()    {}
func (SendMessage) sealedAction()   {}
func (DeleteMessage) sealedAction() {}
func (Stop) sealedAction()          {}

// DecodeAction decodes one tagged action.
func DecodeAction(data []byte) (Action, error) {
	var tag tagOnly
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to read action tag: %w", err)
	}
	if tag.Type == nil {
		return nil, fmt.Errorf("action: missing type tag: %w", ErrUnknownTag)
	}

	switch ActionType(*tag.Type) {
	case ActionDud:
		return Dud{}, nil
	case ActionWait:
		return decodeAs[Wait](data)
	case ActionSetVariable:
		return decodeAs[SetVariable](data)
	case ActionAddRole:
		return decodeAs[AddRole](data)
	case ActionRemoveRole:
		return decodeAs[RemoveRole](data)
	case ActionToggleRole:
		return decodeAs[ToggleRole](data)
	case ActionSendMessage:
		return decodeAs[SendMessage](data)
	case ActionDeleteMessage:
		return decodeAs[DeleteMessage](data)
	case ActionStop:
		return decodeAs[Stop](data)
	default:
		return nil, fmt.Errorf("action type %d: %w", *tag.Type, ErrUnknownTag)
	}
}

// EncodeAction renders one action with its "type" tag.
func EncodeAction(a Action) ([]byte, error) {
	return withTag(int(a.Type()), a)
}

func decodeAs[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s action: %w", v.Type(), err)
	}
	return v, nil
}

// Actions is an ordered action list with tagged JSON encoding.
type Actions []Action

// UnmarshalJSON decodes every element, failing on the first unknown tag.
func (as *Actions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode actions: %w", err)
	}
	out := make(Actions, 0, len(raw))
	for i, r := range raw {
		a, err := DecodeAction(r)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	*as = out
	return nil
}

// MarshalJSON renders every element with its "type" tag.
func (as Actions) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(as))
	for i, a := range as {
		b, err := EncodeAction(a)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

// Flow is an ordered, linear list of actions.
type Flow struct {
	ID      uint64  `json:"id,string"`
	Name    string  `json:"name,omitempty"`
	Actions Actions `json:"actions"`
}
