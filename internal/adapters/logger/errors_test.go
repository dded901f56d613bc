package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestCollectErrorEntries(t *testing.T) {
	root := errors.New("connection reset")
	err := zerr.With(zerr.Wrap(root, "save chunk"), "layer", "tile/5/3")

	entries := logger.CollectErrorEntries(err)

	require.Len(t, entries, 2)
	assert.Equal(t, "save chunk", entries[0].Message)
	assert.Equal(t, map[string]any{"layer": "tile/5/3"}, entries[0].Metadata)
	assert.Equal(t, logger.ErrorEntry{Message: "connection reset"}, entries[1])
}

func TestCollectErrorEntries_PlainError(t *testing.T) {
	entries := logger.CollectErrorEntries(errors.New("boom"))

	assert.Equal(t, []logger.ErrorEntry{{Message: "boom"}}, entries)
}

func TestFormatErrorEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []logger.ErrorEntry
		want    string
	}{
		{
			name:    "single",
			entries: []logger.ErrorEntry{{Message: "boom"}},
			want:    "Error: boom",
		},
		{
			name: "metadata sorted",
			entries: []logger.ErrorEntry{
				{Message: "load tile", Metadata: map[string]any{"z": 3, "lod": 5}},
			},
			want: "Error: load tile\n       lod: 5\n       z: 3",
		},
		{
			name: "causes",
			entries: []logger.ErrorEntry{
				{Message: "flush tiles"},
				{Message: "save chunk", Metadata: map[string]any{"layer": "tile/5/3"}},
				{Message: "disk full\nretry later"},
			},
			want: "Error: flush tiles\n\n  Caused by:\n" +
				"    → save chunk\n      layer: tile/5/3\n" +
				"    → disk full\n      retry later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.FormatErrorEntries(tt.entries))
		})
	}
}
