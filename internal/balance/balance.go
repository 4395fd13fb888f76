// Package balance equalizes class counts of a training partition.
package balance

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Policy selects how classes are equalized
type Policy string

// Balancing policies
const (
	None       Policy = "none"
	Downsample Policy = "downsample"
	Upsample   Policy = "upsample"
	SMOTE      Policy = "SMOTE"
)

// Strategy selects which trials are kept or repeated
type Strategy string

// Selection strategies
const (
	Longest Strategy = "longest"
	Random  Strategy = "random"
)

const (
	smoteNeighbors = 5
	smoteSeed      = 666
)

// BalancingError reports a class without training examples
type BalancingError struct {
	Class  int
	Counts []int
}

func (e *BalancingError) Error() string {
	return fmt.Sprintf("class %d has no training example (counts %v)", e.Class, e.Counts)
}

// Balancer equalizes the classes 1..NBins of a training set
type Balancer struct {
	Policy   Policy
	Strategy Strategy
	NBins    int

	rng *rand.Rand
}

// New returns a Balancer. rng drives the random strategy; nil seeds one from the clock.
func New(policy, strategy string, nBins int, rng *rand.Rand) (*Balancer, error) {
	switch Policy(policy) {
	case None, Downsample, Upsample, SMOTE:
	default:
		return nil, fmt.Errorf("unknown balancing option %q", policy)
	}
	switch Strategy(strategy) {
	case Longest, Random:
	default:
		return nil, fmt.Errorf("unknown balance strategy %q", strategy)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Balancer{Policy: Policy(policy), Strategy: Strategy(strategy), NBins: nBins, rng: rng}, nil
}

// Balance returns a class-balanced copy of set
func (b *Balancer) Balance(set *trial.Set) (*trial.Set, error) {
	counts := set.Counts(b.NBins)
	for k, c := range counts {
		if c == 0 {
			return nil, &BalancingError{Class: k + 1, Counts: counts}
		}
	}

	switch b.Policy {
	case Downsample:
		return b.downsample(set, counts), nil
	case Upsample:
		return b.upsample(set, counts), nil
	case SMOTE:
		return b.smote(set, counts)
	}
	return set.Subset(allRows(set)), nil
}

func allRows(set *trial.Set) []int {
	rows := make([]int, set.Len())
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// classRows lists the rows of every class 1..nBins in set order
func (b *Balancer) classRows(set *trial.Set) [][]int {
	rows := make([][]int, b.NBins)
	for i, t := range set.Trials {
		if t.EventType >= 1 && t.EventType <= b.NBins {
			rows[t.EventType-1] = append(rows[t.EventType-1], i)
		}
	}
	return rows
}

// pick selects n of rows by strategy and returns them in set order
func (b *Balancer) pick(set *trial.Set, rows []int, n int) []int {
	chosen := make([]int, len(rows))
	copy(chosen, rows)

	switch b.Strategy {
	case Longest:
		sort.SliceStable(chosen, func(i, j int) bool {
			return set.Trials[chosen[i]].Duration > set.Trials[chosen[j]].Duration
		})
	case Random:
		b.rng.Shuffle(len(chosen), func(i, j int) {
			chosen[i], chosen[j] = chosen[j], chosen[i]
		})
	}

	chosen = chosen[:n]
	sort.Ints(chosen)
	return chosen
}

func (b *Balancer) downsample(set *trial.Set, counts []int) *trial.Set {
	minCount, _ := countRange(counts)

	var keep []int
	for _, rows := range b.classRows(set) {
		keep = append(keep, b.pick(set, rows, minCount)...)
	}
	sort.Ints(keep)

	return set.Subset(keep)
}

func (b *Balancer) upsample(set *trial.Set, counts []int) *trial.Set {
	_, maxCount := countRange(counts)

	rows := allRows(set)
	for k, class := range b.classRows(set) {
		deficit := maxCount - counts[k]
		multiples := deficit / counts[k]
		rows = append(rows, b.pick(set, class, deficit-multiples*counts[k])...)
		for i := 0; i < multiples; i++ {
			rows = append(rows, class...)
		}
	}

	return set.Subset(rows)
}

// smote appends synthetic trials interpolated towards same-class nearest neighbors
func (b *Balancer) smote(set *trial.Set, counts []int) (*trial.Set, error) {
	_, maxCount := countRange(counts)
	k := Neighbors(counts)
	rng := rand.New(rand.NewSource(smoteSeed))

	var synthetic []trial.Trial
	var data []float64
	for class, rows := range b.classRows(set) {
		need := maxCount - counts[class]
		if need == 0 {
			continue
		}

		neighbors := nearest(set.Signal, rows, k)
		for i := 0; i < need; i++ {
			j := rng.Intn(len(rows))
			x := set.Signal.RawRowView(rows[j])

			point := make([]float64, len(x))
			copy(point, x)
			if k > 0 {
				nn := set.Signal.RawRowView(neighbors[j][rng.Intn(k)])
				// point = x + u * (nn - x)
				floats.AddScaled(point, rng.Float64(), floats.SubTo(make([]float64, len(x)), nn, x))
			}

			synthetic = append(synthetic, trial.Synthesize(class+1))
			data = append(data, point...)
		}
	}

	if len(synthetic) == 0 {
		return set.Subset(allRows(set)), nil
	}

	extra, err := trial.NewSet(synthetic, mat64.NewDense(len(synthetic), set.Voxels(), data))
	if err != nil {
		return nil, err
	}
	return set.Append(extra)
}

// Neighbors returns the SMOTE neighbor count: the default bounded by the smallest class size minus one
func Neighbors(counts []int) int {
	k := smoteNeighbors
	for _, c := range counts {
		if c-1 < k {
			k = c - 1
		}
	}
	if k < 0 {
		k = 0
	}
	return k
}

// nearest returns, for each of rows, its k nearest other rows by Euclidean distance, ties to the earlier row
func nearest(signal *mat64.Dense, rows []int, k int) [][]int {
	out := make([][]int, len(rows))
	if k == 0 {
		return out
	}

	for i, r := range rows {
		others := make([]int, 0, len(rows)-1)
		dist := make(map[int]float64, len(rows)-1)
		for _, o := range rows {
			if o == r {
				continue
			}
			others = append(others, o)
			dist[o] = floats.Distance(signal.RawRowView(r), signal.RawRowView(o), 2)
		}
		sort.SliceStable(others, func(a, b int) bool {
			return dist[others[a]] < dist[others[b]]
		})
		out[i] = others[:k]
	}

	return out
}

// countRange returns the smallest and the largest class count
func countRange(counts []int) (int, int) {
	lo, hi := counts[0], counts[0]
	for _, c := range counts {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return lo, hi
}
