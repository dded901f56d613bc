package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/adapters/logger"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

func newBuffered(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	lg, ok := logger.New().(*logger.Logger)
	require.True(t, ok)

	var buf bytes.Buffer
	lg.SetOutput(&buf)
	return lg, &buf
}

func TestLogger_Info(t *testing.T) {
	lg, buf := newBuffered(t)

	lg.Info("seeded 313 nodes")

	assert.Equal(t, "seeded 313 nodes\n", buf.String())
}

func TestLogger_WarnCarriesIcon(t *testing.T) {
	lg, buf := newBuffered(t)

	lg.Warn("tile cache near capacity")

	assert.Contains(t, buf.String(), "tile cache near capacity")
	assert.True(t, strings.HasPrefix(buf.String(), "! "), buf.String())
}

func TestLogger_ErrorRendersChain(t *testing.T) {
	lg, buf := newBuffered(t)

	err := zerr.With(zerr.Wrap(domain.ErrOutOfBounds, "query material"), "position", "(1, 2, 3)")
	lg.Error(err)

	out := buf.String()
	assert.Contains(t, out, "Error: query material")
	assert.Contains(t, out, "Caused by:")
	assert.Contains(t, out, "position: (1, 2, 3)")
}

func TestLogger_ErrorIgnoresNil(t *testing.T) {
	lg, buf := newBuffered(t)

	lg.Error(nil)

	assert.Empty(t, buf.String())
}

func TestLogger_SetJSON(t *testing.T) {
	lg, buf := newBuffered(t)
	lg.SetJSON(true)

	lg.Info("flushed 4 pending deltas")
	lg.Error(errors.New("disk full"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "INFO", info["level"])
	assert.Equal(t, "flushed 4 pending deltas", info["msg"])

	var failure map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))
	assert.Equal(t, "ERROR", failure["level"])
	assert.Equal(t, "disk full", failure["error"])
}

func TestLogger_SetOutputKeepsMode(t *testing.T) {
	lg, _ := newBuffered(t)
	lg.SetJSON(true)

	var next bytes.Buffer
	lg.SetOutput(&next)
	lg.Info("moved")

	assert.True(t, json.Valid(bytes.TrimSpace(next.Bytes())), next.String())
}
