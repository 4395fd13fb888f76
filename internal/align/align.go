// Package align maps raw signal samples onto behavioral events.
package align

import (
	"fmt"
	"sort"

	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/calc"
	"github.com/KyungWonPark/Decoding/internal/signal"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Options of the alignment
type Options struct {
	// Lag is the hemodynamic delay in samples
	Lag int
	// NBins bounds the class labels; 0 disables the check
	NBins   int
	Workers int
}

const (
	constantDecimals = 5
	constantFraction = 0.1
)

// CheckConstant fails with a ConstantSignalError when a row is dominated by one rounded absolute value
func CheckConstant(m *mat64.Dense, workers int) error {
	rows := calc.Init(workers).ConstantRows(m, constantDecimals, constantFraction)
	if len(rows) > 0 {
		return &ConstantSignalError{Rows: rows, Fraction: constantFraction}
	}
	return nil
}

type eventInfo struct {
	fold  int
	label int
}

// sample tally of the log rows falling in one raw sample
type tally struct {
	events  map[int]int
	buffers map[int]int
}

func (t *tally) add(row bids.LogRow, event int) {
	if t.events == nil {
		t.events = make(map[int]int)
		t.buffers = make(map[int]int)
	}
	t.events[event]++
	t.buffers[row.Buffer]++
}

// majority returns the key with the highest count, ties to the lowest key
func majority(counts map[int]int) int {
	best, bestCount := 0, -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}

// Align returns one trial and one averaged signal row per decodable event.
// logs holds the behavioral rows of each session in session order.
func Align(sessions *signal.Sessions, logs [][]bids.LogRow, opts Options) (*trial.Set, error) {
	if len(logs) != len(sessions.Counts) {
		return nil, fmt.Errorf("Align: %d event logs for %d sessions", len(logs), len(sessions.Counts))
	}

	total, _ := sessions.Signal.Dims()
	samples := make([]tally, total)
	events := make(map[int]*eventInfo)

	eventOffset := 0
	for s, rows := range logs {
		maxEvent := eventOffset
		for line, row := range rows {
			if row.TR < 1 || row.TR > sessions.Counts[s] {
				return nil, &AlignmentError{
					Session: s + 1,
					Line:    line + 2,
					TR:      row.TR,
					Samples: sessions.Counts[s],
					Reason:  "sample index outside the session",
				}
			}
			if opts.NBins > 0 && row.Label != 0 && (row.Label < 1 || row.Label > opts.NBins) {
				return nil, fmt.Errorf("Align: session %d log line %d: label %d outside 1..%d", s+1, line+2, row.Label, opts.NBins)
			}

			event := row.Event + eventOffset
			if event > maxEvent {
				maxEvent = event
			}

			info, ok := events[event]
			if !ok {
				info = &eventInfo{fold: row.Fold}
				events[event] = info
			}
			if row.Fold < info.fold {
				info.fold = row.Fold
			}
			if row.Label != 0 && (info.label == 0 || row.Label < info.label) {
				info.label = row.Label
			}

			samples[sessions.Offset(s+1)+row.TR-1].add(row, event)
		}
		eventOffset = maxEvent
	}

	var trials []trial.Trial
	for s := range logs {
		start := sessions.Offset(s + 1)
		for local := opts.Lag; local < sessions.Counts[s]; local++ {
			src := start + local - opts.Lag
			if samples[src].events == nil {
				continue
			}

			event := majority(samples[src].events)
			info := events[event]
			if info.label == 0 {
				continue
			}

			trials = append(trials, trial.Trial{
				Event:     event,
				Session:   s + 1,
				Fold:      info.fold,
				Buffer:    majority(samples[src].buffers),
				EventType: info.label,
				TR:        src,
				TRAdj:     start + local,
			})
		}
	}

	sort.SliceStable(trials, func(i, j int) bool {
		a, b := trials[i], trials[j]
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.Fold != b.Fold {
			return a.Fold < b.Fold
		}
		return a.TR < b.TR
	})

	return merge(sessions.Signal, trials, opts.Workers)
}

// merge averages the signal rows of each event into its first trial
func merge(sig *mat64.Dense, trials []trial.Trial, workers int) (*trial.Set, error) {
	first := make(map[int]int)
	var merged []trial.Trial
	var groups [][]int

	for _, t := range trials {
		k, ok := first[t.Event]
		if !ok {
			first[t.Event] = len(merged)
			t.Duration = 1
			t.TREnd = t.TR
			t.TRAdjEnd = t.TRAdj
			merged = append(merged, t)
			groups = append(groups, []int{t.TRAdj})
			continue
		}

		m := &merged[k]
		// fold and class are resolved per event, only the buffer can change between samples
		if t.Buffer != m.Buffer {
			m.LabelConflict = true
			log.WithFields(log.Fields{
				"event":        m.Event,
				"first_buffer": m.Buffer,
				"buffer":       t.Buffer,
				"tr":           t.TR,
			}).Warn("Merged event carries a different buffer in a later sample, keeping the first")
		}
		m.Duration++
		m.TREnd = t.TR
		m.TRAdjEnd = t.TRAdj
		m.MultiEvent = true
		groups[k] = append(groups[k], t.TRAdj)
	}

	if len(merged) == 0 {
		return nil, fmt.Errorf("Align: no decodable event")
	}

	_, voxels := sig.Dims()
	out := mat64.NewDense(len(merged), voxels, nil)
	if err := calc.Init(workers).Avg(sig, groups, out); err != nil {
		return nil, err
	}

	return trial.NewSet(merged, out)
}
