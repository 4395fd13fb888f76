package io

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("Mat64toNpy: failed to open file %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2

	// RawMatrix data may carry a stride wider than cols
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, matrix.RawRowView(i)...)
	}

	if err := w.WriteFloat64(data); err != nil {
		return fmt.Errorf("Mat64toNpy: failed to write file %s: %w", path, err)
	}

	return nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix.
// One-dimensional arrays are read as a single column.
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("NpytoMat64: failed to open file %s: %w", path, err)
	}

	var rows, cols int
	switch len(r.Shape) {
	case 1:
		rows, cols = r.Shape[0], 1
	case 2:
		rows, cols = r.Shape[0], r.Shape[1]
	default:
		return nil, fmt.Errorf("NpytoMat64: %s has %d dimensions, want 1 or 2", path, len(r.Shape))
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("NpytoMat64: failed to read file %s: %w", path, err)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("NpytoMat64: %s holds %d values for shape %v", path, len(data), r.Shape)
	}

	if r.ColumnMajor && cols > 1 {
		rowMajor := make([]float64, len(data))
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				rowMajor[i*cols+j] = data[j*rows+i]
			}
		}
		data = rowMajor
	}

	return mat64.NewDense(rows, cols, data), nil
}
