// Package trial holds the decodable unit of behavior and the signal rows that go with it.
package trial

import (
	"fmt"
	"sort"

	"github.com/gonum/matrix/mat64"
)

// Split names the axis that groups trials into held-out folds
type Split string

// Supported fold-label axes
const (
	SplitFold    Split = "fold"
	SplitSession Split = "session"
	SplitSubFold Split = "sub_fold"
)

// ParseSplit validates a fold-label axis name
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case SplitFold, SplitSession, SplitSubFold:
		return Split(s), nil
	}
	return "", fmt.Errorf("unknown fold-label axis %q", s)
}

// Trial is one decodable event. Sample indices are 0-based over the concatenated sessions.
type Trial struct {
	Event     int
	Session   int
	Fold      int
	SubFold   int
	Buffer    int
	EventType int
	Duration  int

	TR       int
	TREnd    int
	TRAdj    int
	TRAdjEnd int

	MultiEvent bool
	// LabelConflict marks a merged event whose later samples carried another buffer
	LabelConflict bool

	// Synthetic trials carry only EventType. Every other field is absent.
	Synthetic bool
}

// Synthesize returns a synthetic trial of the given class
func Synthesize(eventType int) Trial {
	return Trial{EventType: eventType, Synthetic: true}
}

// Label returns the trial's value on the given axis. Synthetic trials have none.
func (t Trial) Label(s Split) (int, bool) {
	if t.Synthetic {
		return 0, false
	}

	switch s {
	case SplitFold:
		return t.Fold, true
	case SplitSession:
		return t.Session, true
	case SplitSubFold:
		return t.SubFold, true
	}
	return 0, false
}

// Result is a trial annotated by one classification run
type Result struct {
	Trial

	Prediction int
	Proba      []float64
	Corr       []float64

	// Perm is the permutation index, -1 for unpermuted runs
	Perm int
}

// Set keeps trials and their signal rows together. Signal is nil for an empty set.
type Set struct {
	Trials []Trial
	Signal *mat64.Dense
}

// NewSet pairs trials with signal rows
func NewSet(trials []Trial, signal *mat64.Dense) (*Set, error) {
	rows := 0
	if signal != nil {
		rows, _ = signal.Dims()
	}
	if rows != len(trials) {
		return nil, fmt.Errorf("NewSet: %d trials for %d signal rows", len(trials), rows)
	}

	return &Set{Trials: trials, Signal: signal}, nil
}

// Len returns number of trials
func (s *Set) Len() int {
	return len(s.Trials)
}

// Voxels returns number of signal columns
func (s *Set) Voxels() int {
	if s.Signal == nil {
		return 0
	}
	_, c := s.Signal.Dims()
	return c
}

// Subset copies the listed rows, in the listed order
func (s *Set) Subset(rows []int) *Set {
	out := &Set{Trials: make([]Trial, len(rows))}
	if len(rows) == 0 {
		return out
	}

	out.Signal = mat64.NewDense(len(rows), s.Voxels(), nil)
	for i, r := range rows {
		out.Trials[i] = s.Trials[r]
		copy(out.Signal.RawRowView(i), s.Signal.RawRowView(r))
	}

	return out
}

// Where returns the indices of trials for which keep holds
func (s *Set) Where(keep func(Trial) bool) []int {
	var rows []int
	for i, t := range s.Trials {
		if keep(t) {
			rows = append(rows, i)
		}
	}
	return rows
}

// Filter is Subset(Where(keep))
func (s *Set) Filter(keep func(Trial) bool) *Set {
	return s.Subset(s.Where(keep))
}

// Append returns a new set holding s followed by other
func (s *Set) Append(other *Set) (*Set, error) {
	if s.Len() == 0 {
		return other.Subset(seq(other.Len())), nil
	}
	if other.Len() == 0 {
		return s.Subset(seq(s.Len())), nil
	}
	if s.Voxels() != other.Voxels() {
		return nil, fmt.Errorf("Append: %d voxels when other has %d", s.Voxels(), other.Voxels())
	}

	n := s.Len() + other.Len()
	out := &Set{
		Trials: make([]Trial, 0, n),
		Signal: mat64.NewDense(n, s.Voxels(), nil),
	}
	out.Trials = append(append(out.Trials, s.Trials...), other.Trials...)
	for i := 0; i < s.Len(); i++ {
		copy(out.Signal.RawRowView(i), s.Signal.RawRowView(i))
	}
	for i := 0; i < other.Len(); i++ {
		copy(out.Signal.RawRowView(s.Len()+i), other.Signal.RawRowView(i))
	}

	return out, nil
}

// Counts returns the number of trials of each class 1..nBins
func (s *Set) Counts(nBins int) []int {
	counts := make([]int, nBins)
	for _, t := range s.Trials {
		if t.EventType >= 1 && t.EventType <= nBins {
			counts[t.EventType-1]++
		}
	}
	return counts
}

// EventTypes returns the class label of every trial
func (s *Set) EventTypes() []int {
	labels := make([]int, len(s.Trials))
	for i, t := range s.Trials {
		labels[i] = t.EventType
	}
	return labels
}

// LabelValues returns the sorted distinct values of the axis
func (s *Set) LabelValues(split Split) []int {
	return Unique(s.Trials, func(t Trial) (int, bool) { return t.Label(split) })
}

// Unique returns the sorted distinct values of key over trials
func Unique(trials []Trial, key func(Trial) (int, bool)) []int {
	seen := make(map[int]bool)
	var values []int
	for _, t := range trials {
		v, ok := key(t)
		if ok && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Ints(values)
	return values
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
