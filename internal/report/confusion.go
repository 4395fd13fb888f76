package report

import (
	"strconv"

	"github.com/gonum/floats"

	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Confusion is the prediction count matrix of one run with every row rotated so the correct
// class sits at column Center
type Confusion struct {
	NBins  int
	Center int

	// Counts[x][j] counts trials of class x+1 predicted (j-Center) steps away from x+1
	Counts   [][]float64
	Aligned  []float64
	Function []float64
}

// NewConfusion tallies results of one run. Results without a prediction are skipped.
func NewConfusion(results []trial.Result, nBins int) *Confusion {
	c := &Confusion{
		NBins:    nBins,
		Center:   (nBins - 1) / 2,
		Counts:   make([][]float64, nBins),
		Aligned:  make([]float64, nBins),
		Function: make([]float64, nBins),
	}
	for x := range c.Counts {
		c.Counts[x] = make([]float64, nBins)
	}

	for _, r := range results {
		x, p := r.EventType-1, r.Prediction-1
		if x < 0 || x >= nBins || p < 0 || p >= nBins {
			continue
		}
		j := ((p-x+c.Center)%nBins + nBins) % nBins
		c.Counts[x][j]++
	}

	for _, row := range c.Counts {
		floats.Add(c.Aligned, row)
	}
	if total := floats.Sum(c.Aligned); total > 0 {
		copy(c.Function, c.Aligned)
		floats.Scale(1/total, c.Function)
	}

	return c
}

// Offsets returns the column headers: the angular distance between prediction and truth in degrees
func (c *Confusion) Offsets() []string {
	step := 360 / float64(c.NBins)
	out := make([]string, c.NBins)
	for j := range out {
		k := ((j-c.Center)%c.NBins + c.NBins) % c.NBins
		out[j] = degrees(float64(k) * step)
	}
	return out
}

// degrees renders whole values with one decimal, so 240 becomes "240.0"
func degrees(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
