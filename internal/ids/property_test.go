package ids

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Decode(Encode(id)) == id for every encodable identifier.
func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ephemeral round-trips", prop.ForAll(
		func(token string) bool {
			return roundTrips(Ephemeral(token))
		},
		gen.Identifier(),
	))

	properties.Property("actor-backed round-trips", prop.ForAll(
		func(n uint64) bool {
			return roundTrips(ActorBacked(n))
		},
		gen.UInt64Range(1, ^uint64(0)),
	))

	properties.Property("self-contained round-trips", prop.ForAll(
		func(routingID string, fields []string) bool {
			return roundTrips(SelfContained(routingID, fields...))
		},
		gen.Identifier(),
		gen.SliceOfN(3, gen.AlphaString()),
	))

	properties.Property("unknown tags never decode", prop.ForAll(
		func(s string) bool {
			if len(s) >= 2 {
				switch s[:2] {
				case "t_", "p_", "a_":
					return true
				}
			}
			_, err := Decode(s)
			return err != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// roundTrips reports whether id survives encoding. Identifiers that cannot be
// encoded (for example too long) are vacuously accepted.
func roundTrips(id Identifier) bool {
	s, err := Encode(id)
	if err != nil {
		return true
	}
	back, err := Decode(s)
	if err != nil {
		return false
	}
	if back.Tier != id.Tier || back.Token != id.Token ||
		back.ComponentID != id.ComponentID || back.RoutingID != id.RoutingID {
		return false
	}
	if len(back.Fields) != len(id.Fields) {
		return false
	}
	for i := range id.Fields {
		if back.Fields[i] != id.Fields[i] {
			return false
		}
	}
	return true
}
