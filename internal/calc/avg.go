package calc

import (
	"fmt"
	"sync"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

func avg(inputMat *mat64.Dense, outputMat *mat64.Dense, groups [][]int, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			dst := outputMat.RawRowView(index)
			for i := range dst {
				dst[i] = 0
			}

			for _, row := range groups[index] {
				floats.Add(dst, inputMat.RawRowView(row))
			}

			if n := len(groups[index]); n > 0 {
				floats.Scale(1/float64(n), dst)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// Avg writes the mean of the inputMat rows listed in groups[g] to row g of outputMat.
// Empty groups produce a zero row.
func (p *PipeLine) Avg(inputMat *mat64.Dense, groups [][]int, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != len(groups) || outputCols != inputCols {
		return fmt.Errorf("Avg: %d groups over %d columns when output dims: %d by %d", len(groups), inputCols, outputRows, outputCols)
	}
	for g, group := range groups {
		for _, row := range group {
			if row < 0 || row >= inputRows {
				return fmt.Errorf("Avg: group %d references row %d of %d", g, row, inputRows)
			}
		}
	}

	p.dispatch(len(groups), func(order <-chan int, wg *sync.WaitGroup) {
		avg(inputMat, outputMat, groups, order, wg)
	})

	return nil
}
