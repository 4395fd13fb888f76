// Package classify fits and applies the per-fold classifiers.
package classify

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Classifier is fitted on samples-by-voxels rows labelled 1..nBins
type Classifier interface {
	Fit(X *mat64.Dense, y []int) error
	Predict(X *mat64.Dense) []int
	// PredictProba returns one row per sample and one column per class
	PredictProba(X *mat64.Dense) *mat64.Dense
}

// UnknownClassifierError reports an unsupported classifier name
type UnknownClassifierError struct {
	Name string
}

func (e *UnknownClassifierError) Error() string {
	return fmt.Sprintf("unknown classifier %q (want svm or logreg)", e.Name)
}

// New returns the classifier registered under name
func New(name string, nBins int) (Classifier, error) {
	switch name {
	case "svm":
		return NewLinearSVC(nBins), nil
	case "logreg":
		return NewLogisticRegression(nBins), nil
	}
	return nil, &UnknownClassifierError{Name: name}
}

// balancedWeights returns n / (classes present * count) for every class 1..nBins
func balancedWeights(y []int, nBins int) []float64 {
	counts := make([]int, nBins)
	for _, label := range y {
		counts[label-1]++
	}

	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}

	weights := make([]float64, nBins)
	for k, c := range counts {
		if c > 0 {
			weights[k] = float64(len(y)) / float64(present*c)
		}
	}
	return weights
}

func checkLabels(name string, X *mat64.Dense, y []int, nBins int) error {
	rows, _ := X.Dims()
	if rows != len(y) {
		return fmt.Errorf("%s: %d samples for %d labels", name, rows, len(y))
	}
	if rows == 0 {
		return fmt.Errorf("%s: no training sample", name)
	}
	for i, label := range y {
		if label < 1 || label > nBins {
			return fmt.Errorf("%s: label %d of sample %d outside 1..%d", name, label, i, nBins)
		}
	}
	return nil
}

// argmax returns the 1-based class of the highest score, ties to the lowest class
func argmax(scores []float64) int {
	best := 0
	for k, s := range scores {
		if s > scores[best] {
			best = k
		}
	}
	return best + 1
}
