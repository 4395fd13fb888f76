package roi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memVolume struct {
	dims [4]int
	at   func(x, y, z, t int) float64
}

func (m memVolume) Dims() [4]int              { return m.dims }
func (m memVolume) At(x, y, z, t int) float64 { return m.at(x, y, z, t) }

func labelled(labels map[Voxel]int) memVolume {
	return memVolume{
		dims: [4]int{2, 2, 2, 1},
		at: func(x, y, z, _ int) float64 {
			return float64(labels[Voxel{x, y, z}])
		},
	}
}

func TestMaskIntersectsSessions(t *testing.T) {
	ses1 := labelled(map[Voxel]int{{0, 0, 1}: 1024, {1, 0, 0}: 2024, {1, 1, 1}: 1024})
	ses2 := labelled(map[Voxel]int{{0, 0, 1}: 2024, {1, 0, 0}: 2024, {0, 1, 0}: 1024})

	voxels, err := Mask([]Volume{ses1, ses2}, []int{1024, 2024})
	require.NoError(t, err)
	assert.Equal(t, []Voxel{{0, 0, 1}, {1, 0, 0}}, voxels)

	_, err = Mask([]Volume{ses1, ses2}, []int{17})
	require.Error(t, err)
}

func TestMaskRejectsShapeMismatch(t *testing.T) {
	other := memVolume{dims: [4]int{3, 2, 2, 1}, at: func(int, int, int, int) float64 { return 0 }}
	_, err := Mask([]Volume{labelled(nil), other}, []int{1})
	require.Error(t, err)
}

func TestExtract(t *testing.T) {
	bold := memVolume{
		dims: [4]int{2, 2, 2, 5},
		at: func(x, y, z, t int) float64 {
			return float64(100*t + 10*x + z)
		},
	}

	m, err := Extract(bold, []Voxel{{0, 0, 1}, {1, 1, 0}}, 2)
	require.NoError(t, err)

	r, c := m.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{301, 310}, m.RawRowView(3))

	_, err = Extract(bold, []Voxel{{2, 0, 0}}, 1)
	require.Error(t, err)
}

func TestVoxelMatrix(t *testing.T) {
	m := VoxelMatrix([]Voxel{{1, 2, 3}})
	assert.Equal(t, []float64{1, 2, 3}, m.RawRowView(0))
}

func TestLabelNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc-aparcaseg_dseg.tsv")
	require.NoError(t, os.WriteFile(path, []byte("index\tname\n1024\tctx-lh-precentral\n2024\tctx-rh-precentral\n"), 0o644))

	names, err := LabelNames(path, []int{2024, 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-rh-precentral", "n/a"}, names)
}

func TestOpenNiftiMissing(t *testing.T) {
	_, err := OpenNifti(filepath.Join(t.TempDir(), "absent.nii"))
	require.Error(t, err)
}
