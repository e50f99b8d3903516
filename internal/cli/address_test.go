package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/actor"
)

func TestAddress(t *testing.T) {
	out, err := execute(t, "address", "1100000000000000001", "p_1234567890")
	require.NoError(t, err)
	assert.Equal(t, "84a366b6791e6ad30cfcd582456f2918\n", out)
}

func TestAddressJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "address", "1100000000000000001", "p_1234567890")
	require.NoError(t, err)

	var resp struct {
		Data AddressResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, uint64(1234567890), resp.Data.ComponentID)
	assert.Equal(t, actor.Address("1100000000000000001", "p_1234567890"), resp.Data.Address)
	assert.True(t, actor.ValidAddress(resp.Data.Address))
}

func TestAddressRejectsOtherTiers(t *testing.T) {
	tests := []string{"t_abc", "a_delete-reaction-role_1:x", "p_", "nonsense"}
	for _, customID := range tests {
		t.Run(customID, func(t *testing.T) {
			out, err := execute(t, "address", "1100000000000000001", customID)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "Error [E100]")
		})
	}
}
