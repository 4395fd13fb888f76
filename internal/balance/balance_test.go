package balance

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Decoding/internal/trial"
)

// trainingSet builds counts[k] trials of class k+1 with growing durations and a 3-voxel signal
func trainingSet(t *testing.T, counts ...int) *trial.Set {
	t.Helper()

	var trials []trial.Trial
	var data []float64
	for k, n := range counts {
		for i := 0; i < n; i++ {
			trials = append(trials, trial.Trial{
				Event:     len(trials) + 1,
				Fold:      1 + i%2,
				EventType: k + 1,
				Duration:  1 + (i*7)%5,
			})
			data = append(data, float64(k), float64(i), float64(k*i))
		}
	}

	set, err := trial.NewSet(trials, mat64.NewDense(len(trials), 3, data))
	require.NoError(t, err)
	return set
}

func mustNew(t *testing.T, policy, strategy string, nBins int) *Balancer {
	t.Helper()
	b, err := New(policy, strategy, nBins, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return b
}

func TestDownsampleLongest(t *testing.T) {
	set := trainingSet(t, 10, 10, 10, 10, 10, 2)

	out, err := mustNew(t, "downsample", "longest", 6).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2}, out.Counts(6))

	kept := make(map[int]bool)
	for _, tr := range out.Trials {
		kept[tr.Event] = true
	}
	for class := 1; class <= 6; class++ {
		minKept := 1 << 30
		for _, tr := range out.Trials {
			if tr.EventType == class && tr.Duration < minKept {
				minKept = tr.Duration
			}
		}
		for _, tr := range set.Trials {
			if tr.EventType == class && !kept[tr.Event] {
				assert.LessOrEqual(t, tr.Duration, minKept, "class %d dropped a longer trial", class)
			}
		}
	}

	// original order is kept
	for i := 1; i < out.Len(); i++ {
		assert.Less(t, out.Trials[i-1].Event, out.Trials[i].Event)
	}

	// signal rows follow their trials
	for i, tr := range out.Trials {
		assert.Equal(t, set.Signal.RawRowView(tr.Event-1), out.Signal.RawRowView(i))
	}
}

func TestDownsampleRandom(t *testing.T) {
	set := trainingSet(t, 6, 3, 4)

	a, err := mustNew(t, "downsample", "random", 3).Balance(set)
	require.NoError(t, err)
	b, err := mustNew(t, "downsample", "random", 3).Balance(set)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 3}, a.Counts(3))
	assert.Equal(t, a.Trials, b.Trials, "same source, same selection")
}

func TestUpsample(t *testing.T) {
	set := trainingSet(t, 3, 1, 2)

	out, err := mustNew(t, "upsample", "longest", 3).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3}, out.Counts(3))

	events := make([]int, out.Len())
	for i, tr := range out.Trials {
		events[i] = tr.Event
	}
	// original set, then class 2 copied twice whole, then the longest of class 3
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 4, 4, 6}, events)
}

func TestUpsampleRemainderThenMultiples(t *testing.T) {
	set := trainingSet(t, 7, 3)

	out, err := mustNew(t, "upsample", "longest", 2).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 7}, out.Counts(2))

	// deficit 4 = one whole copy plus the longest single trial
	tail := out.Trials[10:]
	require.Len(t, tail, 4)
	assert.Equal(t, 10, tail[0].Event)
	assert.Equal(t, []int{8, 9, 10}, []int{tail[1].Event, tail[2].Event, tail[3].Event})
}

func TestSMOTE(t *testing.T) {
	set := trainingSet(t, 6, 3, 4)

	out, err := mustNew(t, "SMOTE", "longest", 3).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 6, 6}, out.Counts(3))

	for i, tr := range out.Trials {
		if i < set.Len() {
			assert.Equal(t, set.Trials[i], tr)
			continue
		}

		assert.True(t, tr.Synthetic)
		_, ok := tr.Label(trial.SplitFold)
		assert.False(t, ok)

		// synthetic points stay inside their class's bounding box
		row := out.Signal.RawRowView(i)
		assert.Equal(t, float64(tr.EventType-1), row[0])
		assert.GreaterOrEqual(t, row[1], 0.0)
		assert.LessOrEqual(t, row[1], 5.0)
	}

	again, err := mustNew(t, "SMOTE", "random", 3).Balance(set)
	require.NoError(t, err)
	assert.True(t, mat64.Equal(out.Signal, again.Signal), "synthesis uses its own fixed seed")
}

func TestSMOTESingleExample(t *testing.T) {
	set := trainingSet(t, 4, 1)
	assert.Equal(t, 0, Neighbors(set.Counts(2)))

	out, err := mustNew(t, "SMOTE", "longest", 2).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, out.Counts(2))

	for i := set.Len(); i < out.Len(); i++ {
		assert.Equal(t, set.Signal.RawRowView(4), out.Signal.RawRowView(i))
	}
}

func TestNeighbors(t *testing.T) {
	assert.Equal(t, 5, Neighbors([]int{10, 10}))
	assert.Equal(t, 2, Neighbors([]int{3, 8}))
	assert.Equal(t, 0, Neighbors([]int{1, 8}))
}

func TestCountRange(t *testing.T) {
	lo, hi := countRange([]int{4, 9, 2, 9})
	assert.Equal(t, 2, lo)
	assert.Equal(t, 9, hi)

	lo, hi = countRange([]int{3})
	assert.Equal(t, 3, lo)
	assert.Equal(t, 3, hi)
}

func TestNoneAndEmptyClass(t *testing.T) {
	set := trainingSet(t, 2, 5)

	out, err := mustNew(t, "none", "longest", 2).Balance(set)
	require.NoError(t, err)
	assert.Equal(t, set.Trials, out.Trials)

	_, err = mustNew(t, "upsample", "longest", 3).Balance(set)
	var balErr *BalancingError
	require.True(t, errors.As(err, &balErr))
	assert.Equal(t, 3, balErr.Class)
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New("oversample", "longest", 2, nil)
	require.Error(t, err)
	_, err = New("none", "shortest", 2, nil)
	require.Error(t, err)
}
