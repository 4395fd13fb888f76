// Package crossval runs leave-one-fold-out decoding over every scope of a participant.
package crossval

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/balance"
	"github.com/KyungWonPark/Decoding/internal/calc"
	"github.com/KyungWonPark/Decoding/internal/classify"
	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Across labels the accuracy pooled over all held-out folds
const Across = "across"

// Training and testing count sets
const (
	SetTrain         = "train"
	SetTrainBalanced = "train_balanced"
	SetTest          = "test"
)

// Options control one participant's cross-validation
type Options struct {
	NBins           int
	Split           trial.Split
	Classifier      string
	BalancingOption string
	BalanceStrategy string

	Buffering     bool
	TestsetBuffer bool
	WithinSession bool

	Perm  bool
	NPerm int

	// Seed 0 draws one from the clock
	Seed    int64
	Workers int

	Pipe *calc.PipeLine
}

// FromConfig reads Options from a resolved configuration
func FromConfig(cfg *config.Config) Options {
	d := cfg.Decoding
	return Options{
		NBins:           d.NBins,
		Split:           cfg.Split(),
		Classifier:      d.Classifier,
		BalancingOption: d.BalancingOption,
		BalanceStrategy: d.BalanceStrategy,
		Buffering:       d.Buffering,
		TestsetBuffer:   d.TestsetBuffer,
		WithinSession:   d.WithinSession,
		Perm:            d.Perm,
		NPerm:           d.NPerm,
		Seed:            d.Seed,
		Workers:         d.Workers,
	}
}

// Scope restricts a run to one buffer and one session. Zero means unrestricted.
type Scope struct {
	Buffer  int
	Session int
}

// Accuracy is the balanced accuracy of one held-out fold or of all of them
type Accuracy struct {
	HeldOut string
	Value   float64
}

// Count is the number of trials of one class in one set of one held-out fold
type Count struct {
	HeldOut   string
	Set       string
	EventType int
	Count     int
}

// MissingExampleWarning records classes absent from a held-out test fold
type MissingExampleWarning struct {
	Split   trial.Split
	HeldOut int
	Perm    int
	Classes []int
}

func (w MissingExampleWarning) String() string {
	return fmt.Sprintf("%s %d: no test example of class %v", w.Split, w.HeldOut, w.Classes)
}

// Run is one full pass over every held-out fold of a scope
type Run struct {
	// Perm is the permutation index, -1 for the unpermuted run
	Perm     int
	Results  []trial.Result
	Accuracy []Accuracy
	Counts   []Count
	Warnings []MissingExampleWarning
}

// ScopeResult holds the runs of one scope, in permutation order
type ScopeResult struct {
	Scope
	Runs []Run
}

// Orchestrator runs the cross-validation of one participant
type Orchestrator struct {
	opts Options
	log  *log.Entry
}

// New validates opts and returns an Orchestrator. A zero seed is replaced by one from the clock.
func New(opts Options, entry *log.Entry) (*Orchestrator, error) {
	if _, err := classify.New(opts.Classifier, opts.NBins); err != nil {
		return nil, err
	}
	if _, err := balance.New(opts.BalancingOption, opts.BalanceStrategy, opts.NBins, rand.New(rand.NewSource(1))); err != nil {
		return nil, err
	}
	if _, err := trial.ParseSplit(string(opts.Split)); err != nil {
		return nil, err
	}
	if opts.Perm && opts.NPerm < 1 {
		return nil, fmt.Errorf("crossval: permutation needs at least one run")
	}
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
		entry.WithField("seed", opts.Seed).Warn("No seed configured, random selection is not reproducible")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Pipe == nil {
		opts.Pipe = calc.Init(0)
	}

	return &Orchestrator{opts: opts, log: entry}, nil
}

// Seed returns the seed every random stream is derived from
func (o *Orchestrator) Seed() int64 {
	return o.opts.Seed
}

// Plan enumerates the scopes of set: buffers when buffering, times sessions when within-session
func Plan(opts Options, set *trial.Set) []Scope {
	buffers := []int{0}
	if opts.Buffering {
		buffers = trial.Unique(set.Trials, func(t trial.Trial) (int, bool) { return t.Buffer, !t.Synthetic })
	}
	sessions := []int{0}
	if opts.WithinSession {
		sessions = trial.Unique(set.Trials, func(t trial.Trial) (int, bool) { return t.Session, !t.Synthetic })
	}

	var scopes []Scope
	for _, b := range buffers {
		for _, s := range sessions {
			scopes = append(scopes, Scope{Buffer: b, Session: s})
		}
	}
	return scopes
}

// Run executes every scope of set. Nothing is returned unless every scope succeeds.
func (o *Orchestrator) Run(ctx context.Context, set *trial.Set) ([]ScopeResult, error) {
	scopes := Plan(o.opts, set)
	out := make([]ScopeResult, len(scopes))

	for i, scope := range scopes {
		res, err := o.RunScope(ctx, set, scope, i)
		if err != nil {
			return nil, fmt.Errorf("buffer %d, session %d: %w", scope.Buffer, scope.Session, err)
		}
		out[i] = *res
	}

	return out, nil
}

// Pools returns the training and testing pools of a scope
func (o *Orchestrator) Pools(set *trial.Set, scope Scope) (*trial.Set, *trial.Set) {
	base := set
	if scope.Session > 0 {
		base = set.Filter(func(t trial.Trial) bool { return t.Session == scope.Session })
	}

	train := base
	if scope.Buffer > 0 {
		train = base.Filter(func(t trial.Trial) bool { return t.Buffer == scope.Buffer })
	}

	if o.opts.TestsetBuffer {
		return train, train
	}
	return train, base
}

/*
	Workflow:

	RunScope -> runWorker(order) * workers -> wg.Wait
*/

func (o *Orchestrator) runWorker(ctx context.Context, train, test *trial.Set, seeds []int64, runs []Run, errs []error, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			if err := ctx.Err(); err != nil {
				errs[index] = err
			} else {
				perm := -1
				if o.opts.Perm {
					perm = index
				}
				run, err := o.runOnce(train, test, perm, rand.New(rand.NewSource(seeds[index])))
				if err != nil {
					errs[index] = err
				} else {
					runs[index] = *run
				}
			}

			wg.Done()
		} else {
			break
		}
	}
}

// RunScope executes the runs of one scope. index makes the random streams of different scopes independent.
func (o *Orchestrator) RunScope(ctx context.Context, set *trial.Set, scope Scope, index int) (*ScopeResult, error) {
	train, test := o.Pools(set, scope)
	if train.Len() == 0 {
		return nil, fmt.Errorf("no training trial")
	}

	n := 1
	if o.opts.Perm {
		n = o.opts.NPerm
	}

	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = o.opts.Seed + int64(index)*1000003 + int64(i)
	}

	runs := make([]Run, n)
	errs := make([]error, n)

	workers := o.opts.Workers
	if workers > n {
		workers = n
	}

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < workers; i++ {
		go o.runWorker(ctx, train, test, seeds, runs, errs, order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &ScopeResult{Scope: scope, Runs: runs}, nil
}

// heldOutValues is the sorted union of fold labels in both pools
func heldOutValues(train, test *trial.Set, split trial.Split) []int {
	all := append(append([]trial.Trial(nil), train.Trials...), test.Trials...)
	return trial.Unique(all, func(t trial.Trial) (int, bool) { return t.Label(split) })
}

func (o *Orchestrator) runOnce(train, test *trial.Set, perm int, rng *rand.Rand) (*Run, error) {
	opts := o.opts
	entry := o.log
	if perm >= 0 {
		entry = entry.WithField("i_perm", perm)
	}

	balancer, err := balance.New(opts.BalancingOption, opts.BalanceStrategy, opts.NBins, rng)
	if err != nil {
		return nil, err
	}

	run := &Run{Perm: perm, Results: make([]trial.Result, test.Len())}
	for i, t := range test.Trials {
		run.Results[i] = trial.Result{Trial: t, Perm: perm}
	}
	predicted := make([]bool, test.Len())

	for _, heldOut := range heldOutValues(train, test, opts.Split) {
		label := strconv.Itoa(heldOut)
		foldLog := entry.WithField("hold_out", heldOut)

		trainSet := train.Filter(func(t trial.Trial) bool {
			v, ok := t.Label(opts.Split)
			return !ok || v != heldOut
		})
		testRows := test.Where(func(t trial.Trial) bool {
			v, ok := t.Label(opts.Split)
			return ok && v == heldOut
		})
		testSet := test.Subset(testRows)

		trainCounts := trainSet.Counts(opts.NBins)
		testCounts := testSet.Counts(opts.NBins)
		run.Counts = appendCounts(run.Counts, label, SetTrain, trainCounts)

		balanced, err := balancer.Balance(trainSet)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", opts.Split, heldOut, err)
		}
		balancedCounts := balanced.Counts(opts.NBins)
		run.Counts = appendCounts(run.Counts, label, SetTrainBalanced, balancedCounts)
		run.Counts = appendCounts(run.Counts, label, SetTest, testCounts)

		fields := log.Fields{"train": trainCounts, "train_balanced": balancedCounts, "test": testCounts}
		if perm < 0 {
			foldLog.WithFields(fields).Info("Balance of events")
		} else {
			foldLog.WithFields(fields).Debug("Balance of events")
		}

		var missing []int
		for k, c := range testCounts {
			if c == 0 {
				missing = append(missing, k+1)
			}
		}
		if len(missing) > 0 {
			w := MissingExampleWarning{Split: opts.Split, HeldOut: heldOut, Perm: perm, Classes: missing}
			run.Warnings = append(run.Warnings, w)
			foldLog.Warn(w.String())
		}

		if testSet.Len() == 0 {
			run.Accuracy = append(run.Accuracy, Accuracy{HeldOut: label, Value: math.NaN()})
			continue
		}

		clf, err := classify.New(opts.Classifier, opts.NBins)
		if err != nil {
			return nil, err
		}
		res, err := classify.Fold(clf, balanced, testSet, classify.FoldOptions{
			NBins:   opts.NBins,
			Split:   opts.Split,
			Permute: perm >= 0,
			Rand:    rng,
			Pipe:    opts.Pipe,
		})
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", opts.Split, heldOut, err)
		}

		for i, row := range testRows {
			r := &run.Results[row]
			r.Prediction = res.Prediction[i]
			r.Proba = append([]float64(nil), res.Proba.RawRowView(i)...)
			r.Corr = append([]float64(nil), res.Corr.RawRowView(i)...)
			predicted[row] = true
		}

		acc := BalancedAccuracy(testSet.EventTypes(), res.Prediction)
		run.Accuracy = append(run.Accuracy, Accuracy{HeldOut: label, Value: acc})
		foldLog.WithField("clf_acc", acc).Debug("Fold classified")
	}

	var yTrue, yPred []int
	for i, r := range run.Results {
		if predicted[i] {
			yTrue = append(yTrue, r.EventType)
			yPred = append(yPred, r.Prediction)
		}
	}
	across := BalancedAccuracy(yTrue, yPred)
	run.Accuracy = append(run.Accuracy, Accuracy{HeldOut: Across, Value: across})

	if perm < 0 {
		entry.WithField("clf_acc", across).Info("Cross-validation done")
	}

	return run, nil
}

func appendCounts(counts []Count, heldOut, set string, values []int) []Count {
	for k, c := range values {
		counts = append(counts, Count{HeldOut: heldOut, Set: set, EventType: k + 1, Count: c})
	}
	return counts
}

// BalancedAccuracy is the mean recall over the classes present in yTrue. It is NaN for no samples.
func BalancedAccuracy(yTrue, yPred []int) float64 {
	total := make(map[int]int)
	hit := make(map[int]int)
	for i, y := range yTrue {
		total[y]++
		if yPred[i] == y {
			hit[y]++
		}
	}
	if len(total) == 0 {
		return math.NaN()
	}

	classes := make([]int, 0, len(total))
	for class := range total {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	sum := 0.0
	for _, class := range classes {
		sum += float64(hit[class]) / float64(total[class])
	}
	return sum / float64(len(classes))
}
