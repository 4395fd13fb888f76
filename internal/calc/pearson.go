package calc

import (
	"fmt"
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func pearson(rowMat *mat64.Dense, patternMat *mat64.Dense, outputMat *mat64.Dense, rowStats []statistic, patternStats []statistic, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := rowMat.Dims()
	numPatterns, _ := patternMat.Dims()

	for {
		from, ok := <-order
		if ok {
			x := rowMat.RawRowView(from)
			for to := 0; to < numPatterns; to++ {
				y := patternMat.RawRowView(to)

				var accProd float64
				for t := 0; t < inputCols; t++ {
					accProd += x[t] * y[t]
				}

				cov := (accProd / float64(inputCols)) - (rowStats[from].avg * patternStats[to].avg)
				denom := rowStats[from].std * patternStats[to].std

				value := math.NaN()
				if denom > 0 {
					value = cov / denom
				}

				outputMat.Set(from, to, value)
			}

			wg.Done()
		} else {
			break
		}
	}
}

func getStat(mat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	_, numCols := mat.Dims()
	for {
		index, ok := <-order
		if ok {
			var accVal float64
			var accSqrVal float64

			for _, value := range mat.RawRowView(index) {
				accVal += value
				accSqrVal += value * value
			}

			avgVal := accVal / float64(numCols)
			avgSqrVal := accSqrVal / float64(numCols)

			stats[index].avg = avgVal
			stats[index].std = math.Sqrt(math.Max(avgSqrVal-(avgVal*avgVal), 0))

			wg.Done()
		} else {
			break
		}
	}
}

func (p *PipeLine) rowStats(mat *mat64.Dense) []statistic {
	rows, _ := mat.Dims()
	stats := make([]statistic, rows)

	p.dispatch(rows, func(order <-chan int, wg *sync.WaitGroup) {
		getStat(mat, stats, order, wg)
	})

	return stats
}

// Pearson correlates every row of rowMat with every row of patternMat.
// outputMat must be rows(rowMat) by rows(patternMat); zero-variance pairs yield NaN.
func (p *PipeLine) Pearson(rowMat *mat64.Dense, patternMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := rowMat.Dims()
	patternRows, patternCols := patternMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputCols != patternCols {
		return fmt.Errorf("Pearson: rows have %d columns but patterns have %d", inputCols, patternCols)
	}
	if outputRows != inputRows || outputCols != patternRows {
		return fmt.Errorf("Pearson: input is %d by %d but output is %d by %d", inputRows, patternRows, outputRows, outputCols)
	}

	rowStats := p.rowStats(rowMat)
	patternStats := p.rowStats(patternMat)

	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		pearson(rowMat, patternMat, outputMat, rowStats, patternStats, order, wg)
	})

	return nil
}
