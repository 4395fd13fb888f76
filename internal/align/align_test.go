package align

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/signal"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

const voxels = 20

func noisySessions(t *testing.T, counts ...int) *signal.Sessions {
	t.Helper()
	rng := rand.New(rand.NewSource(7))

	parts := make([]*mat64.Dense, len(counts))
	for i, n := range counts {
		data := make([]float64, n*voxels)
		for j := range data {
			data[j] = rng.NormFloat64()
		}
		parts[i] = mat64.NewDense(n, voxels, data)
	}

	s, err := signal.Concat(parts, false)
	require.NoError(t, err)
	return s
}

// sessionLog places 30 events, every third sample, alternating one and two samples long
func sessionLog(foldA, foldB int) []bids.LogRow {
	var rows []bids.LogRow
	for e := 1; e <= 30; e++ {
		fold := foldA
		if e > 15 {
			fold = foldB
		}
		start := 3*e - 2
		for d := 0; d < 1+e%2; d++ {
			rows = append(rows, bids.LogRow{
				Event:  e,
				TR:     start + d,
				Fold:   fold,
				Buffer: 1 + e%2,
				Label:  (e-1)%6 + 1,
			})
		}
	}
	return rows
}

func TestAlignTwoSessionScenario(t *testing.T) {
	sessions := noisySessions(t, 100, 100)

	ses1 := append(sessionLog(1, 2), bids.LogRow{Event: 31, TR: 100, Fold: 2, Buffer: 1, Label: 1})
	ses2 := sessionLog(3, 4)

	set, err := Align(sessions, [][]bids.LogRow{ses1, ses2}, Options{Lag: 2, NBins: 6, Workers: 2})
	require.NoError(t, err)

	// event 31 is shifted past the end of session 1 and dropped
	require.Equal(t, 60, set.Len())

	r, c := set.Signal.Dims()
	assert.Equal(t, 60, r)
	assert.Equal(t, voxels, c)

	for i, tr := range set.Trials {
		assert.GreaterOrEqual(t, tr.TREnd, tr.TR)
		assert.Equal(t, tr.TR+2, tr.TRAdj)
		assert.Equal(t, tr.TREnd+2, tr.TRAdjEnd)

		if tr.Session == 1 {
			assert.Less(t, tr.TRAdjEnd, 100)
			assert.LessOrEqual(t, tr.Event, 30)
			assert.Contains(t, []int{1, 2}, tr.Fold)
		} else {
			assert.GreaterOrEqual(t, tr.TR, 100)
			assert.Greater(t, tr.Event, 31, "session 2 ids follow the largest session 1 id")
			assert.Contains(t, []int{3, 4}, tr.Fold)
		}

		local := tr.Event
		if tr.Session == 2 {
			local -= 31
		}
		assert.Equal(t, 1+local%2, tr.Duration)
		assert.Equal(t, tr.Duration > 1, tr.MultiEvent)
		assert.Equal(t, (local-1)%6+1, tr.EventType)

		if i > 0 {
			prev := set.Trials[i-1]
			ordered := prev.Session < tr.Session ||
				(prev.Session == tr.Session && prev.Fold < tr.Fold) ||
				(prev.Session == tr.Session && prev.Fold == tr.Fold && prev.TR < tr.TR)
			assert.True(t, ordered, "trial %d out of order", i)
		}
	}

	// merged rows average the lag-adjusted samples
	first := set.Trials[0]
	require.Equal(t, 1, first.Event)
	require.Equal(t, 2, first.Duration)
	for v := 0; v < voxels; v++ {
		want := (sessions.Signal.At(first.TRAdj, v) + sessions.Signal.At(first.TRAdj+1, v)) / 2
		assert.InDelta(t, want, set.Signal.At(0, v), 1e-12)
	}
}

func TestAlignIsIdempotent(t *testing.T) {
	sessions := noisySessions(t, 100, 100)
	logs := [][]bids.LogRow{sessionLog(1, 2), sessionLog(3, 4)}
	opts := Options{Lag: 2, NBins: 6}

	a, err := Align(sessions, logs, opts)
	require.NoError(t, err)
	b, err := Align(sessions, logs, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Trials, b.Trials)
	assert.True(t, mat64.Equal(a.Signal, b.Signal))
}

func TestAlignOverlapWinner(t *testing.T) {
	sessions := noisySessions(t, 10)
	rows := []bids.LogRow{
		{Event: 1, TR: 2, Fold: 1, Buffer: 2, Label: 1},
		{Event: 2, TR: 2, Fold: 1, Buffer: 1, Label: 2},
		{Event: 2, TR: 2, Fold: 1, Buffer: 1, Label: 2},
		{Event: 2, TR: 3, Fold: 1, Buffer: 1, Label: 2},
		{Event: 3, TR: 5, Fold: 1, Buffer: 1, Label: 1},
		{Event: 4, TR: 5, Fold: 1, Buffer: 2, Label: 2},
	}

	set, err := Align(sessions, [][]bids.LogRow{rows}, Options{Lag: 0, NBins: 2})
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, 2, set.Trials[0].Event)
	assert.Equal(t, 1, set.Trials[0].TR)
	assert.Equal(t, 2, set.Trials[0].TREnd)
	assert.Equal(t, 1, set.Trials[0].Buffer)

	// equal coverage goes to the lower event id
	assert.Equal(t, 3, set.Trials[1].Event)
	assert.Equal(t, 4, set.Trials[1].TR)
}

func TestAlignFlagsLabelConflict(t *testing.T) {
	sessions := noisySessions(t, 10)
	rows := []bids.LogRow{
		{Event: 1, TR: 2, Fold: 1, Buffer: 1, Label: 3},
		{Event: 1, TR: 3, Fold: 1, Buffer: 2, Label: 3},
	}

	set, err := Align(sessions, [][]bids.LogRow{rows}, Options{Lag: 1, NBins: 6})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	tr := set.Trials[0]
	assert.True(t, tr.LabelConflict)
	assert.Equal(t, 1, tr.Buffer)
	assert.Equal(t, 2, tr.Duration)
	assert.Equal(t, 2, tr.TRAdj)

	// folds are resolved once per event, so differing fold entries are not a conflict
	rows = []bids.LogRow{
		{Event: 1, TR: 2, Fold: 2, Buffer: 1, Label: 3},
		{Event: 1, TR: 3, Fold: 1, Buffer: 1, Label: 3},
	}
	set, err = Align(sessions, [][]bids.LogRow{rows}, Options{Lag: 1, NBins: 6})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.False(t, set.Trials[0].LabelConflict)
	assert.Equal(t, 1, set.Trials[0].Fold)
}

func TestAlignRejectsOutOfRange(t *testing.T) {
	sessions := noisySessions(t, 100, 100)

	for _, tr := range []int{0, 101} {
		bad := []bids.LogRow{{Event: 1, TR: tr, Fold: 3, Buffer: 1, Label: 1}}
		_, err := Align(sessions, [][]bids.LogRow{sessionLog(1, 2), bad}, Options{Lag: 2, NBins: 6})

		var alignErr *AlignmentError
		require.True(t, errors.As(err, &alignErr))
		assert.Equal(t, 2, alignErr.Session)
		assert.Equal(t, tr, alignErr.TR)
	}

	badLabel := []bids.LogRow{{Event: 1, TR: 4, Fold: 1, Buffer: 1, Label: 7}}
	_, err := Align(sessions, [][]bids.LogRow{badLabel, nil}, Options{Lag: 2, NBins: 6})
	require.Error(t, err)
	var alignErr *AlignmentError
	assert.False(t, errors.As(err, &alignErr), "a bad label is not a timing defect")
	assert.Contains(t, err.Error(), "label 7 outside 1..6")

	_, err = Align(sessions, [][]bids.LogRow{sessionLog(1, 2)}, Options{Lag: 2})
	require.Error(t, err)
}

func TestCheckConstant(t *testing.T) {
	sessions := noisySessions(t, 5)
	require.NoError(t, CheckConstant(sessions.Signal, 2))

	sessions.Signal.Set(3, 0, 0.123456)
	sessions.Signal.Set(3, 1, -0.123459)

	err := CheckConstant(sessions.Signal, 2)
	var constErr *ConstantSignalError
	require.True(t, errors.As(err, &constErr))
	assert.Equal(t, []int{3}, constErr.Rows)
}

func TestAssignSubFolds(t *testing.T) {
	var trials []trial.Trial
	for i := 0; i < 5; i++ {
		trials = append(trials, trial.Trial{Session: 1, EventType: 1})
	}
	for i := 0; i < 3; i++ {
		trials = append(trials, trial.Trial{Session: 1, EventType: 2})
	}
	for i := 0; i < 5; i++ {
		trials = append(trials, trial.Trial{Session: 2, EventType: 1})
	}
	set := &trial.Set{Trials: trials}

	AssignSubFolds(set, 2)
	got := make([]int, len(trials))
	for i, tr := range set.Trials {
		got[i] = tr.SubFold
	}
	assert.Equal(t, []int{1, 1, 1, 2, 2, 1, 1, 2, 1, 1, 1, 2, 2}, got)

	AssignSubFolds(set, 4)
	for i, tr := range set.Trials[:5] {
		got[i] = tr.SubFold
	}
	assert.Equal(t, []int{1, 1, 2, 3, 4}, got[:5])
}

func TestReorganize(t *testing.T) {
	var trials []trial.Trial
	for i := 0; i < 5; i++ {
		trials = append(trials, trial.Trial{Session: 2, EventType: 1, Buffer: 1 + i%2, Fold: 3})
	}
	set := &trial.Set{Trials: trials}

	Reorganize(set, false)
	folds := func() []int {
		out := make([]int, len(set.Trials))
		for i, tr := range set.Trials {
			out[i] = tr.Fold
		}
		return out
	}
	assert.Equal(t, []int{3, 3, 3, 4, 4}, folds())

	// buffers 1,2,1,2,1 are split on their own
	Reorganize(set, true)
	assert.Equal(t, []int{3, 3, 3, 4, 4}, folds())

	set.Trials[4].Buffer = 2
	Reorganize(set, true)
	assert.Equal(t, []int{3, 3, 4, 3, 4}, folds())
}
