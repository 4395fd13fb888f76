package signal

import (
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Decoding/internal/io"
)

func TestConcat(t *testing.T) {
	a := mat64.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat64.NewDense(3, 2, []float64{5, 6, 7, 8, 9, 10})

	s, err := Concat([]*mat64.Dense{a, b}, false)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []int{2, 3}, s.Counts)
	assert.Equal(t, []float64{5, 6}, s.Signal.RawRowView(2))
	assert.Equal(t, 2, s.Offset(2))
	assert.Equal(t, 0, s.Offset(1))
	assert.Equal(t, 1, s.SessionOf(1))
	assert.Equal(t, 2, s.SessionOf(2))
	assert.Equal(t, 0, s.SessionOf(5))
}

func TestConcatRejectsVoxelMismatch(t *testing.T) {
	_, err := Concat([]*mat64.Dense{mat64.NewDense(1, 2, nil), mat64.NewDense(1, 3, nil)}, false)
	require.Error(t, err)
}

func TestConcatSharedMemory(t *testing.T) {
	a := mat64.NewDense(2, 2, []float64{1, 2, 3, 4})

	s, err := Concat([]*mat64.Dense{a, a}, true)
	if err != nil {
		t.Skipf("shared memory unavailable: %v", err)
	}

	assert.Equal(t, 3.0, s.Signal.At(3, 0))
	require.NoError(t, s.Close())
	assert.Nil(t, s.Signal)
}

func TestLoadStandardizes(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "ses-1.npy"), filepath.Join(dir, "ses-2.npy")}
	require.NoError(t, io.Mat64toNpy(paths[0], mat64.NewDense(2, 1, []float64{1, 3})))
	require.NoError(t, io.Mat64toNpy(paths[1], mat64.NewDense(2, 1, []float64{10, 30})))

	s, err := Load(paths, Options{Standardize: true, Workers: 1})
	require.NoError(t, err)

	// each session is standardized on its own
	assert.InDelta(t, -1, s.Signal.At(0, 0), 1e-12)
	assert.InDelta(t, 1, s.Signal.At(1, 0), 1e-12)
	assert.InDelta(t, -1, s.Signal.At(2, 0), 1e-12)
	assert.InDelta(t, 1, s.Signal.At(3, 0), 1e-12)
}
