package calc

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func getColStat(mat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	numRows, _ := mat.Dims()
	for {
		index, ok := <-order
		if ok {
			var accVal float64
			var accSqrVal float64

			for t := 0; t < numRows; t++ {
				value := mat.At(t, index)
				accVal += value
				accSqrVal += value * value
			}

			avgVal := accVal / float64(numRows)
			avgSqrVal := accSqrVal / float64(numRows)

			stats[index].avg = avgVal
			stats[index].std = math.Sqrt(math.Max(avgSqrVal-(avgVal*avgVal), 0))

			wg.Done()
		} else {
			break
		}
	}
}

func (p *PipeLine) colStats(mat *mat64.Dense) []statistic {
	_, cols := mat.Dims()
	stats := make([]statistic, cols)

	p.dispatch(cols, func(order <-chan int, wg *sync.WaitGroup) {
		getColStat(mat, stats, order, wg)
	})

	return stats
}

func zScoring(inputMat *mat64.Dense, outputMat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	inputRows, _ := inputMat.Dims()

	for {
		index, ok := <-order
		if ok {
			std := stats[index].std
			if std < 1e-12 {
				std = 1
			}

			for t := 0; t < inputRows; t++ {
				value := inputMat.At(t, index)
				newValue := (value - stats[index].avg) / std
				outputMat.Set(t, index, newValue)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// ZScoring standardizes every column (voxel time course) to zero mean and unit variance.
// Flat columns are only centred.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	if err := checkSameDims("ZScoring", inputMat, outputMat); err != nil {
		return err
	}

	_, inputCols := inputMat.Dims()
	stats := p.colStats(inputMat)

	p.dispatch(inputCols, func(order <-chan int, wg *sync.WaitGroup) {
		zScoring(inputMat, outputMat, stats, order, wg)
	})

	return nil
}
