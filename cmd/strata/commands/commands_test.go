package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/cmd/strata/commands"
	"go.trai.ch/strata/internal/app"
	"go.trai.ch/strata/internal/build"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/process"
)

type mockApp struct {
	simulateFunc func(ctx context.Context, opts app.SimulateOptions) (app.Report, error)
}

func (m *mockApp) Simulate(ctx context.Context, opts app.SimulateOptions) (app.Report, error) {
	if m.simulateFunc != nil {
		return m.simulateFunc(ctx, opts)
	}
	return app.Report{}, nil
}

func sampleReport() app.Report {
	return app.Report{
		Seeded: 313,
		Ticks:  2,
		Results: []process.Result{
			{Kind: process.Erosion, Examined: 768, Applied: 16},
		},
		Consolidated: 12,
		Composition:  map[string]int{"air": 3, "water": 1},
		Stats: domain.Statistics{
			Tree:  domain.TreeStats{Nodes: 313, Leaves: 274, MemorySavings: 99.99},
			Tiles: domain.TileStats{Resident: 2, Capacity: 16},
		},
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestCommands_Simulate(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.SimulateOptions
		mock := &mockApp{
			simulateFunc: func(_ context.Context, opts app.SimulateOptions) (app.Report, error) {
				captured = opts
				return sampleReport(), nil
			},
		}

		cli := commands.New(mock)
		buf := new(bytes.Buffer)
		cli.SetOutput(buf, buf)
		cli.SetArgs([]string{
			"simulate", "-p", "erosion,Weathering", "--ticks", "3",
			"--intensity", "0.25", "--seed", "42", "--partitions", "4",
		})

		require.NoError(t, cli.Execute(context.Background()))

		want := app.SimulateOptions{
			Kinds:      []process.Kind{process.Erosion, process.Weathering},
			Ticks:      3,
			Intensity:  0.25,
			Seed:       42,
			Partitions: 4,
		}
		if diff := cmp.Diff(want, captured); diff != "" {
			t.Errorf("options mismatch (-want +got):\n%s", diff)
		}

		out := buf.String()
		assert.Contains(t, out, "Seeded nodes")
		assert.Contains(t, out, "16 of 768 changed")
		assert.Contains(t, out, "99.9900%")
		assert.Contains(t, out, "2 / 16")
		assert.Contains(t, out, "air")
		assert.Contains(t, out, "75.0%")
		assert.Contains(t, out, "1.5s")
	})

	t.Run("defaults to every process", func(t *testing.T) {
		var captured app.SimulateOptions
		mock := &mockApp{
			simulateFunc: func(_ context.Context, opts app.SimulateOptions) (app.Report, error) {
				captured = opts
				return app.Report{}, nil
			},
		}

		cli := commands.New(mock)
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
		cli.SetArgs([]string{"simulate"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, process.Kinds(), captured.Kinds)
		assert.Equal(t, 5, captured.Ticks)
	})

	t.Run("rejects unknown process", func(t *testing.T) {
		mock := &mockApp{
			simulateFunc: func(_ context.Context, _ app.SimulateOptions) (app.Report, error) {
				panic("should not be called")
			},
		}

		cli := commands.New(mock)
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
		cli.SetArgs([]string{"simulate", "-p", "volcanism"})

		err := cli.Execute(context.Background())
		require.ErrorIs(t, err, domain.ErrUnknownProcess)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		mock := &mockApp{
			simulateFunc: func(_ context.Context, _ app.SimulateOptions) (app.Report, error) {
				return app.Report{}, errors.New("simulated error")
			},
		}

		cli := commands.New(mock)
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
		cli.SetArgs([]string{"simulate"})

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})
}

func TestCommands_Stats(t *testing.T) {
	called := false
	mock := &mockApp{
		simulateFunc: func(_ context.Context, opts app.SimulateOptions) (app.Report, error) {
			called = true
			assert.Zero(t, opts.Ticks)
			assert.Empty(t, opts.Kinds)
			return sampleReport(), nil
		},
	}

	cli := commands.New(mock)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"stats"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.True(t, called)
	assert.Contains(t, buf.String(), "Tree nodes")
}

func TestCommands_Version(t *testing.T) {
	cli := commands.New(&mockApp{})

	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Contains(t, buf.String(), build.Version)
}
