package calc

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func pullExtremes(inputMat *mat64.Dense, outputMat *mat64.Dense, stats []statistic, thr float64, before []int, after []int, order <-chan int, wg *sync.WaitGroup) {
	inputRows, _ := inputMat.Dims()

	for {
		index, ok := <-order
		if ok {
			avg := stats[index].avg
			threshPos := avg + thr*stats[index].std
			threshNeg := avg - thr*stats[index].std

			for t := 0; t < inputRows; t++ {
				value := inputMat.At(t, index)
				if value >= threshPos {
					before[index]++
					value = avg + 0.5*math.Abs(avg-value)
				} else if value <= threshNeg {
					before[index]++
					value = avg - 0.5*math.Abs(avg-value)
				}

				if value >= threshPos || value <= threshNeg {
					after[index]++
				}

				outputMat.Set(t, index, value)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// PullExtremes halves the distance to the column mean of every value at least thr standard deviations away from it.
// It returns the number of extreme values before and after the correction.
func (p *PipeLine) PullExtremes(inputMat *mat64.Dense, outputMat *mat64.Dense, thr float64) (int, int, error) {
	if err := checkSameDims("PullExtremes", inputMat, outputMat); err != nil {
		return 0, 0, err
	}

	_, inputCols := inputMat.Dims()
	stats := p.colStats(inputMat)
	before := make([]int, inputCols)
	after := make([]int, inputCols)

	p.dispatch(inputCols, func(order <-chan int, wg *sync.WaitGroup) {
		pullExtremes(inputMat, outputMat, stats, math.Abs(thr), before, after, order, wg)
	})

	var nBefore, nAfter int
	for i := 0; i < inputCols; i++ {
		nBefore += before[i]
		nAfter += after[i]
	}

	return nBefore, nAfter, nil
}
