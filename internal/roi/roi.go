// Package roi builds label-intersection masks from segmentation volumes and extracts masked BOLD signal.
package roi

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/KyungWonPark/nifti"
	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/Decoding/internal/io"
)

// Volume is a 4-D image. Segmentations have a single time point.
type Volume interface {
	Dims() [4]int
	At(x, y, z, t int) float64
}

// Voxel represent a voxel
type Voxel struct {
	X int
	Y int
	Z int
}

type niftiVolume struct {
	img  nifti.Nifti1Image
	dims [4]int
}

// OpenNifti loads an uncompressed NIfTI-1 image
func OpenNifti(path string) (Volume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("OpenNifti: %w", err)
	}

	var header nifti.Nifti1Header
	header.LoadHeader(path)

	v := &niftiVolume{}
	v.img.LoadImage(path, true)

	nDims := int(header.Dim[0])
	if nDims < 3 || nDims > 4 {
		return nil, fmt.Errorf("OpenNifti: %s has %d dimensions", path, nDims)
	}
	for i := 0; i < 4; i++ {
		v.dims[i] = 1
		if i < nDims && header.Dim[i+1] > 0 {
			v.dims[i] = int(header.Dim[i+1])
		}
	}

	return v, nil
}

func (v *niftiVolume) Dims() [4]int {
	return v.dims
}

func (v *niftiVolume) At(x, y, z, t int) float64 {
	return float64(v.img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t)))
}

// Mask returns the voxels whose label is one of labels in every segmentation, x slowest and z fastest
func Mask(segs []Volume, labels []int) ([]Voxel, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("Mask: no segmentation")
	}

	dims := segs[0].Dims()
	for i, seg := range segs[1:] {
		d := seg.Dims()
		if d[0] != dims[0] || d[1] != dims[1] || d[2] != dims[2] {
			return nil, fmt.Errorf("Mask: segmentation %d is %v when segmentation 1 is %v", i+2, d[:3], dims[:3])
		}
	}

	want := make(map[int]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}

	var voxels []Voxel
	for x := 0; x < dims[0]; x++ {
		for y := 0; y < dims[1]; y++ {
			for z := 0; z < dims[2]; z++ {
				inAll := true
				for _, seg := range segs {
					if !want[int(math.Round(seg.At(x, y, z, 0)))] {
						inAll = false
						break
					}
				}
				if inAll {
					voxels = append(voxels, Voxel{x, y, z})
				}
			}
		}
	}

	if len(voxels) == 0 {
		return nil, fmt.Errorf("Mask: no voxel carries labels %v in every segmentation", labels)
	}

	return voxels, nil
}

func sampling(img Volume, voxels []Voxel, timeSeries *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	for {
		timePoint, ok := <-order
		if ok {
			row := timeSeries.RawRowView(timePoint)
			for i, vox := range voxels {
				row[i] = img.At(vox.X, vox.Y, vox.Z, timePoint)
			}
			wg.Done()
		} else {
			break
		}
	}
}

// Extract returns the samples-by-voxels matrix of img restricted to voxels
func Extract(img Volume, voxels []Voxel, numLoader int) (*mat64.Dense, error) {
	dims := img.Dims()
	for _, vox := range voxels {
		if vox.X >= dims[0] || vox.Y >= dims[1] || vox.Z >= dims[2] {
			return nil, fmt.Errorf("Extract: voxel %v outside image of %v", vox, dims[:3])
		}
	}
	if len(voxels) == 0 || dims[3] < 1 {
		return nil, fmt.Errorf("Extract: empty selection")
	}
	if numLoader < 1 {
		numLoader = runtime.NumCPU()
	}

	timeSeries := mat64.NewDense(dims[3], len(voxels), nil)

	order := make(chan int, numLoader)
	var wg sync.WaitGroup

	wg.Add(dims[3])
	for i := 0; i < numLoader; i++ {
		go sampling(img, voxels, timeSeries, order, &wg)
	}

	for timePoint := 0; timePoint < dims[3]; timePoint++ {
		order <- timePoint
	}
	wg.Wait()

	close(order)

	return timeSeries, nil
}

// VoxelMatrix lists voxel coordinates as an n-by-3 matrix
func VoxelMatrix(voxels []Voxel) *mat64.Dense {
	m := mat64.NewDense(len(voxels), 3, nil)
	for i, v := range voxels {
		m.Set(i, 0, float64(v.X))
		m.Set(i, 1, float64(v.Y))
		m.Set(i, 2, float64(v.Z))
	}
	return m
}

// LabelNames looks up label names in a segmentation's index/name table
func LabelNames(path string, labels []int) ([]string, error) {
	t, err := io.ReadTable(path)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = io.NA
		for r := range t.Rows {
			if t.Value(r, "index") == strconv.Itoa(l) {
				names[i] = t.Value(r, "name")
				break
			}
		}
	}

	return names, nil
}
