// Package ids encodes and decodes the custom identifiers carried on every
// interactive element. The two-character tier tag selects where a callback's
// state lives:
//
//	t_<token>                     ephemeral: state in the ephemeral store
//	p_<component id>              actor-backed: state in a component actor
//	a_<routing id>_<f1>:<f2>:...  self-contained: state in the identifier
package ids

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxLength is the longest custom identifier the platform accepts.
const MaxLength = 100

// Tier classifies an identifier by where its state lives.
type Tier string

const (
	TierEphemeral     Tier = "ephemeral"
	TierActorBacked   Tier = "actor-backed"
	TierSelfContained Tier = "self-contained"
)

// Tag returns the wire prefix for the tier, including the separator.
func (t Tier) Tag() string {
	switch t {
	case TierEphemeral:
		return "t_"
	case TierActorBacked:
		return "p_"
	case TierSelfContained:
		return "a_"
	default:
		return ""
	}
}

// ErrMalformedIdentifier is the sentinel wrapped by every decode and encode
// failure. Check with errors.Is.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// MalformedError describes why an identifier was rejected.
type MalformedError struct {
	Input  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Input, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedIdentifier
}

func malformed(input, format string, args ...any) error {
	return &MalformedError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// Identifier is a decoded custom identifier.
//
// Only the fields belonging to Tier are meaningful:
//   - TierEphemeral: Token
//   - TierActorBacked: ComponentID
//   - TierSelfContained: RoutingID and Fields
type Identifier struct {
	Tier        Tier
	Token       string
	ComponentID uint64
	RoutingID   string
	Fields      []string
}

// Ephemeral returns an ephemeral identifier for token.
func Ephemeral(token string) Identifier {
	return Identifier{Tier: TierEphemeral, Token: token}
}

// ActorBacked returns an actor-backed identifier for a persistent component.
func ActorBacked(componentID uint64) Identifier {
	return Identifier{Tier: TierActorBacked, ComponentID: componentID}
}

// SelfContained returns a self-contained identifier. Field order is fixed per
// routing id.
func SelfContained(routingID string, fields ...string) Identifier {
	return Identifier{Tier: TierSelfContained, RoutingID: routingID, Fields: fields}
}

// String encodes the identifier, or returns a diagnostic form when it cannot
// be encoded. Use Encode where the error matters.
func (id Identifier) String() string {
	s, err := Encode(id)
	if err != nil {
		return fmt.Sprintf("<invalid %s identifier>", id.Tier)
	}
	return s
}

// Bind maps self-contained fields to names in order. It fails with
// ErrMalformedIdentifier when the field count differs from len(names).
//
// Example:
//
//	id, _ := Decode("a_delete-reaction-role_123:✨")
//	f, _ := id.Bind("message_id", "reaction")
//	f["reaction"] // "✨"
func (id Identifier) Bind(names ...string) (map[string]string, error) {
	if id.Tier != TierSelfContained {
		return nil, malformed(id.String(), "tier %s carries no fields", id.Tier)
	}
	if len(id.Fields) != len(names) {
		return nil, malformed(id.String(), "routing id %q expects %d fields, got %d",
			id.RoutingID, len(names), len(id.Fields))
	}
	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = id.Fields[i]
	}
	return out, nil
}

// Encode renders id in wire format. It is the strict inverse of Decode.
func Encode(id Identifier) (string, error) {
	var s string
	switch id.Tier {
	case TierEphemeral:
		if id.Token == "" {
			return "", malformed("", "ephemeral token is empty")
		}
		s = "t_" + id.Token

	case TierActorBacked:
		if id.ComponentID == 0 {
			return "", malformed("", "component id is zero")
		}
		s = "p_" + strconv.FormatUint(id.ComponentID, 10)

	case TierSelfContained:
		if err := checkRoutingID(id.RoutingID); err != nil {
			return "", malformed(id.RoutingID, "%s", err)
		}
		var b strings.Builder
		b.WriteString("a_")
		b.WriteString(id.RoutingID)
		if len(id.Fields) > 0 {
			for i, f := range id.Fields {
				if strings.Contains(f, ":") {
					return "", malformed(f, "field %d contains ':'", i)
				}
			}
			b.WriteByte('_')
			b.WriteString(strings.Join(id.Fields, ":"))
		}
		s = b.String()

	default:
		return "", malformed("", "unknown tier %q", id.Tier)
	}

	if n := utf8.RuneCountInString(s); n > MaxLength {
		return "", malformed(s, "length %d exceeds %d", n, MaxLength)
	}
	return s, nil
}

// Decode classifies s by its tier tag and splits the payload. All failures
// wrap ErrMalformedIdentifier.
func Decode(s string) (Identifier, error) {
	if utf8.RuneCountInString(s) > MaxLength {
		return Identifier{}, malformed(s, "exceeds %d characters", MaxLength)
	}
	if len(s) < 2 {
		return Identifier{}, malformed(s, "missing tier tag")
	}

	payload := s[2:]
	switch s[:2] {
	case "t_":
		if payload == "" {
			return Identifier{}, malformed(s, "empty ephemeral token")
		}
		return Ephemeral(payload), nil

	case "p_":
		n, err := parseComponentID(payload)
		if err != nil {
			return Identifier{}, malformed(s, "%s", err)
		}
		return ActorBacked(n), nil

	case "a_":
		routingID, rest, hasFields := strings.Cut(payload, "_")
		if err := checkRoutingID(routingID); err != nil {
			return Identifier{}, malformed(s, "%s", err)
		}
		var fields []string
		if hasFields {
			fields = strings.Split(rest, ":")
		}
		return SelfContained(routingID, fields...), nil

	default:
		return Identifier{}, malformed(s, "unrecognized tier tag %q", s[:2])
	}
}

// parseComponentID accepts canonical unsigned decimal only: no sign, no
// leading zeros, non-zero.
func parseComponentID(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty component id")
	}
	if s[0] == '0' {
		return 0, errors.New("component id has leading zero")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("component id contains %q", s[i])
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("component id out of range: %w", err)
	}
	return n, nil
}

func checkRoutingID(r string) error {
	switch {
	case r == "":
		return errors.New("routing id is empty")
	case strings.ContainsAny(r, ":_"):
		return fmt.Errorf("routing id %q contains ':' or '_'", r)
	}
	return nil
}
