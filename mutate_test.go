package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"object", `{"kind":"behavior"}`, ""},
		{"array", `[{"kind":"behavior"},{"kind":"sleep"}]`, ""},
		{"missing", "", "--data is required"},
		{"invalid", `{"kind":`, "not valid JSON"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newInsertCmd()
			if tc.data != "" {
				require.NoError(t, cmd.Flags().Set("data", tc.data))
			}

			payload, err := readPayload(cmd)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, tc.data, string(payload))
		})
	}
}

func TestMutationDest_Minimal(t *testing.T) {
	cmd := newInsertCmd()
	require.NoError(t, cmd.Flags().Set("minimal", "true"))

	dest, err := mutationDest(cmd)
	require.NoError(t, err)
	assert.Nil(t, dest)
}

func TestMutationDest_Default(t *testing.T) {
	cmd := newInsertCmd()

	dest, err := mutationDest(cmd)
	require.NoError(t, err)
	assert.NotNil(t, dest)
}

func TestRequireFilters(t *testing.T) {
	gateway := newOfflineGateway(t)

	unfiltered := gateway.From("moods")
	require.ErrorContains(t, requireFilters(unfiltered), "refusing to run without filters")

	filtered := gateway.From("moods").Eq("user_id", "u1")
	require.NoError(t, requireFilters(filtered))
}
