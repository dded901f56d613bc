package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/strata/internal/app"
	"go.trai.ch/strata/internal/core/domain"
)

func TestRun(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
	}()

	tests := []struct {
		name         string
		config       string
		args         []string
		expectedExit int
	}{
		{
			name: "simulate small world",
			config: `world:
  min: [0, 0, 0]
  max: [64, 64, 64]
octree:
  maxDepth: 6
router:
  transitionLevel: 4
  tileSize: 4
storage:
  driver: sqlite
`,
			args:         []string{"strata", "simulate", "--ticks", "2"},
			expectedExit: 0,
		},
		{
			name:         "invalid config",
			config:       "octree:\n  maxDepth: 0\n",
			args:         []string{"strata", "stats"},
			expectedExit: 1,
		},
		{
			name: "unknown process",
			config: `world:
  min: [0, 0, 0]
  max: [64, 64, 64]
octree:
  maxDepth: 6
router:
  transitionLevel: 4
`,
			args:         []string{"strata", "simulate", "-p", "volcanism"},
			expectedExit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			err := os.WriteFile(filepath.Join(tmpDir, domain.ConfigFileName), []byte(tt.config), 0o600)
			if err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			t.Chdir(tmpDir)
			t.Setenv("NO_COLOR", "1")

			os.Args = tt.args
			exitCode := run(app.WithClock(clockwork.NewFakeClock()))
			assert.Equal(t, tt.expectedExit, exitCode)
		})
	}
}
