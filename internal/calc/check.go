package calc

import (
	"math"
	"sort"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// ConstantRows returns, in ascending order, the rows in which a single value of round(|v|, decimals)
// accounts for at least fraction of the row's entries.
func (p *PipeLine) ConstantRows(matrix *mat64.Dense, decimals int, fraction float64) []int {
	rows, _ := matrix.Dims()
	isConstant := make([]bool, rows)
	scale := math.Pow(10, float64(decimals))

	p.dispatch(rows, func(order <-chan int, wg *sync.WaitGroup) {
		rowCheck(matrix, isConstant, scale, fraction, order, wg)
	})

	var flagged []int
	for i := 0; i < rows; i++ {
		if isConstant[i] {
			flagged = append(flagged, i)
		}
	}

	sort.Ints(flagged)
	return flagged
}

func rowCheck(matrix *mat64.Dense, isConstant []bool, scale float64, fraction float64, order <-chan int, wg *sync.WaitGroup) {
	_, cols := matrix.Dims()

	for {
		index, ok := <-order
		if ok {
			counts := make(map[float64]int)
			for _, value := range matrix.RawRowView(index) {
				// round half to even, matching numpy.round
				counts[math.RoundToEven(math.Abs(value)*scale)/scale]++
			}

			for _, cnt := range counts {
				if float64(cnt)/float64(cols) >= fraction {
					isConstant[index] = true
					break
				}
			}

			wg.Done()
		} else {
			break
		}
	}
}
