package align

import (
	"sort"

	"github.com/KyungWonPark/Decoding/internal/trial"
)

// blocks returns the first n entries of values tiled, sorted. Consecutive trials therefore share a value.
func blocks(values []int, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = values[i%len(values)]
	}
	sort.Ints(out)
	return out
}

func groupBy(trials []trial.Trial, key func(trial.Trial) [3]int) ([][3]int, map[[3]int][]int) {
	var keys [][3]int
	groups := make(map[[3]int][]int)
	for i, t := range trials {
		k := key(t)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	return keys, groups
}

// AssignSubFolds sets SubFold so that, per session and class, trials are split in order into nFolds contiguous blocks
func AssignSubFolds(set *trial.Set, nFolds int) {
	folds := make([]int, nFolds)
	for i := range folds {
		folds[i] = i + 1
	}

	keys, groups := groupBy(set.Trials, func(t trial.Trial) [3]int {
		return [3]int{t.Session, t.EventType, 0}
	})
	for _, k := range keys {
		rows := groups[k]
		for i, f := range blocks(folds, len(rows)) {
			set.Trials[rows[i]].SubFold = f
		}
	}
}

// Reorganize reassigns Fold so that, per session s and class (and buffer when byBuffer),
// the first half of trials fall in fold 2s-1 and the second half in fold 2s.
func Reorganize(set *trial.Set, byBuffer bool) {
	keys, groups := groupBy(set.Trials, func(t trial.Trial) [3]int {
		k := [3]int{t.Session, t.EventType, 0}
		if byBuffer {
			k[2] = t.Buffer
		}
		return k
	})
	for _, k := range keys {
		rows := groups[k]
		s := k[0]
		for i, f := range blocks([]int{2*s - 1, 2 * s}, len(rows)) {
			set.Trials[rows[i]].Fold = f
		}
	}
}
