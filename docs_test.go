package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateanalytics/star-go/internal/cache"
)

func TestObjectPathFor(t *testing.T) {
	root := filepath.Join("care", "plans")

	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{"top level", "", filepath.Join(root, "plan.json"), "plan.json"},
		{"nested", "", filepath.Join(root, "2026", "plan.json"), "2026/plan.json"},
		{"with prefix", "shared/docs", filepath.Join(root, "plan.json"), "shared/docs/plan.json"},
		{"encodes segments", "", filepath.Join(root, "résumé.pdf"), "r%C3%A9sum%C3%A9.pdf"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := objectPathFor(root, tc.prefix, tc.file)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWriteObjectSnapshot(t *testing.T) {
	ctx := context.Background()

	store, err := cache.Open(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	payload := json.RawMessage(`{"focus":"sleep routine","week":12}`)
	require.NoError(t, store.SaveObject(ctx, "shared", "weekly-focus.json", payload))

	var buf bytes.Buffer
	require.NoError(t, writeObjectSnapshot(ctx, store, "shared", "weekly-focus.json", &buf))
	assert.JSONEq(t, string(payload), buf.String())
}

func TestWriteObjectSnapshot_Missing(t *testing.T) {
	store, err := cache.Open(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	err = writeObjectSnapshot(context.Background(), store, "shared", "absent.json", &buf)
	require.ErrorContains(t, err, "no snapshot")
	assert.Zero(t, buf.Len())
}

func TestDocsGetCmd_OfflineFlag(t *testing.T) {
	cmd := newDocsGetCmd()
	assert.NotNil(t, cmd.Flags().Lookup("offline"))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		flag string
		file string
		want string
	}{
		{"flag wins", "text/plain", "report.pdf", "text/plain"},
		{"by extension", "", "report.pdf", "application/pdf"},
		{"unknown extension", "", "report.xyz123", "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newDocsPutCmd()
			if tc.flag != "" {
				require.NoError(t, cmd.Flags().Set("content-type", tc.flag))
			}

			got, err := detectContentType(cmd, tc.file)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
