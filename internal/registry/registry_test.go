package registry

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Decoding/internal/crossval"
)

func openRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, r.Init(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func scope(perm int, fold, across float64) crossval.ScopeResult {
	return crossval.ScopeResult{Runs: []crossval.Run{{
		Perm: perm,
		Accuracy: []crossval.Accuracy{
			{HeldOut: "1", Value: fold},
			{HeldOut: crossval.Across, Value: across},
		},
	}}}
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	r := openRegistry(t)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := Run{ID: "a", Participant: "sub-01", Started: start, Finished: start.Add(time.Minute), Seed: 3, Manifest: "a.yaml"}
	require.NoError(t, r.Record(ctx, run, []string{"stem-1"}, []crossval.ScopeResult{scope(-1, 0.5, math.NaN())}))

	acc, err := r.Accuracies(ctx, "stem-1")
	require.NoError(t, err)
	require.Len(t, acc, 2)
	assert.Equal(t, "1", acc[0].HeldOut)
	assert.Equal(t, 0.5, acc[0].Value)
	assert.Equal(t, crossval.Across, acc[1].HeldOut)
	assert.True(t, math.IsNaN(acc[1].Value))

	// a rerun replaces the accuracies of the same stem
	rerun := Run{ID: "b", Participant: "sub-01", Started: start.Add(time.Hour), Finished: start.Add(2 * time.Hour), Seed: 4, Manifest: "b.yaml"}
	require.NoError(t, r.Record(ctx, rerun, []string{"stem-1"}, []crossval.ScopeResult{scope(-1, 0.75, 0.7)}))

	acc, err = r.Accuracies(ctx, "stem-1")
	require.NoError(t, err)
	require.Len(t, acc, 2)
	assert.Equal(t, 0.75, acc[0].Value)
	assert.Equal(t, "b", acc[0].RunID)

	latest, ok, err := r.LatestRun(ctx, "sub-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", latest.ID)
	assert.Equal(t, int64(4), latest.Seed)
	assert.True(t, rerun.Finished.Equal(latest.Finished))

	_, ok, err = r.LatestRun(ctx, "sub-99")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordValidates(t *testing.T) {
	ctx := context.Background()

	uninit := New(filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, uninit.Record(ctx, Run{ID: "a"}, nil, nil))

	r := openRegistry(t)
	assert.Error(t, r.Record(ctx, Run{ID: "a"}, []string{"s"}, nil))

	assert.Error(t, New("").Init(ctx))
}
