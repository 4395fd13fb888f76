package calc

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// PipeLine represents a row-parallel compute pipeline
type PipeLine struct {
	numWorkers int
}

type statistic struct {
	avg float64
	std float64
}

// Init returns a compute PipeLine. numWorkers < 1 means one worker per CPU.
func Init(numWorkers int) *PipeLine {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	return &PipeLine{numWorkers: numWorkers}
}

// GetNP returns number of workers
func (p *PipeLine) GetNP() int {
	return p.numWorkers
}

/*
	Workflow:

	dispatch -> worker(order) * numWorkers -> wg.Wait
*/

// dispatch hands indices 0..n-1 to numWorkers copies of worker and blocks until every index is done
func (p *PipeLine) dispatch(n int, worker func(order <-chan int, wg *sync.WaitGroup)) {
	if n == 0 {
		return
	}

	order := make(chan int, p.numWorkers)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numWorkers; i++ {
		go worker(order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

func checkSameDims(name string, inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%s: input dims: %d by %d when output dims: %d by %d", name, inputRows, inputCols, outputRows, outputCols)
	}

	return nil
}
