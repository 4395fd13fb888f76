package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/io"
	"github.com/KyungWonPark/Decoding/internal/roi"
)

type grid struct {
	dims [4]int
	at   func(x, y, z, t int) float64
}

func (g grid) Dims() [4]int              { return g.dims }
func (g grid) At(x, y, z, t int) float64 { return g.at(x, y, z, t) }

func TestExtract(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Decoding.Participant = "sub-01"
	cfg.Signal.MaskIndex = []int{7}

	layout := bids.NewLayout(cfg.Paths.BaseDir, "", "")
	volumes := map[string]roi.Volume{
		// label 7 on the x = 1 plane in session 1, on y = 0 in session 2
		layout.Segmentation("sub-01", "ses-1", "aparcaseg"): grid{[4]int{2, 2, 2, 1}, func(x, y, z, t int) float64 {
			if x == 1 {
				return 7
			}
			return 0
		}},
		layout.Segmentation("sub-01", "ses-2", "aparcaseg"): grid{[4]int{2, 2, 2, 1}, func(x, y, z, t int) float64 {
			if y == 0 {
				return 7
			}
			return 3
		}},
		layout.Bold("sub-01", "ses-1"): grid{[4]int{2, 2, 2, 5}, func(x, y, z, t int) float64 {
			return float64(100*t + 10*x + z)
		}},
		layout.Bold("sub-01", "ses-2"): grid{[4]int{2, 2, 2, 3}, func(x, y, z, t int) float64 {
			return float64(-t)
		}},
	}
	open := func(path string) (roi.Volume, error) {
		v, ok := volumes[path]
		if !ok {
			return nil, fmt.Errorf("no volume at %s", path)
		}
		return v, nil
	}

	written, err := extract(*cfg, open, 2)
	require.NoError(t, err)
	require.Len(t, written, 3)

	voxels, err := io.NpytoMat64(written[0])
	require.NoError(t, err)
	r, c := voxels.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{1, 0, 1}, voxels.RawRowView(1))

	ses1, err := io.NpytoMat64(written[1])
	require.NoError(t, err)
	r, c = ses1.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{310, 311}, ses1.RawRowView(3))

	ses2, err := io.NpytoMat64(written[2])
	require.NoError(t, err)
	r, _ = ses2.Dims()
	assert.Equal(t, 3, r)
}
