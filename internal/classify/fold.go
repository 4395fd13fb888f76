package classify

import (
	"fmt"
	"math/rand"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/Decoding/internal/calc"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

// FoldOptions controls one train/test classification
type FoldOptions struct {
	NBins int
	Split trial.Split

	// Permute shuffles training labels within each fold-label group before fitting
	Permute bool
	Rand    *rand.Rand

	Pipe *calc.PipeLine
}

// FoldResult holds per test trial outputs, one column per class in Proba and Corr
type FoldResult struct {
	Prediction []int
	Proba      *mat64.Dense
	Corr       *mat64.Dense

	// Fitted are the training labels the classifier saw
	Fitted []int
}

// Fold fits clf on train and evaluates it on test. Corr holds the Pearson correlation of
// every test row with the mean training pattern of each class.
func Fold(clf Classifier, train, test *trial.Set, opts FoldOptions) (*FoldResult, error) {
	if train.Len() == 0 {
		return nil, fmt.Errorf("Fold: empty training set")
	}
	if test.Len() == 0 {
		return nil, fmt.Errorf("Fold: empty test set")
	}
	if train.Voxels() != test.Voxels() {
		return nil, fmt.Errorf("Fold: train has %d voxels when test has %d", train.Voxels(), test.Voxels())
	}

	pipe := opts.Pipe
	if pipe == nil {
		pipe = calc.Init(1)
	}

	y := train.EventTypes()
	if opts.Permute {
		if opts.Rand == nil {
			return nil, fmt.Errorf("Fold: permutation without a random source")
		}
		groups := make([]int, train.Len())
		for i, t := range train.Trials {
			groups[i] = NoGroup
			if v, ok := t.Label(opts.Split); ok {
				groups[i] = v
			}
		}
		y = PermuteWithin(y, groups, opts.Rand)
	}

	if err := clf.Fit(train.Signal, y); err != nil {
		return nil, err
	}

	res := &FoldResult{
		Prediction: clf.Predict(test.Signal),
		Proba:      clf.PredictProba(test.Signal),
		Fitted:     y,
	}

	members := make([][]int, opts.NBins)
	for i, label := range y {
		members[label-1] = append(members[label-1], i)
	}
	patterns := mat64.NewDense(opts.NBins, train.Voxels(), nil)
	if err := pipe.Avg(train.Signal, members, patterns); err != nil {
		return nil, err
	}

	res.Corr = mat64.NewDense(test.Len(), opts.NBins, nil)
	if err := pipe.Pearson(test.Signal, patterns, res.Corr); err != nil {
		return nil, err
	}

	return res, nil
}
