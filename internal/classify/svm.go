package classify

import (
	"fmt"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

// LinearSVC is a one-vs-rest linear support vector classifier with balanced class weights
type LinearSVC struct {
	C       float64
	Tol     float64
	MaxPass int
	NBins   int

	weights *mat64.Dense // NBins by voxels+1, bias last
	nVoxels int
}

// NewLinearSVC returns an unfitted LinearSVC
func NewLinearSVC(nBins int) *LinearSVC {
	return &LinearSVC{C: 1, Tol: 1e-3, MaxPass: 1000, NBins: nBins}
}

// Fit solves one hinge-loss problem per class by dual coordinate descent
func (s *LinearSVC) Fit(X *mat64.Dense, y []int) error {
	if err := checkLabels("LinearSVC", X, y, s.NBins); err != nil {
		return err
	}

	rows, cols := X.Dims()
	s.nVoxels = cols
	s.weights = mat64.NewDense(s.NBins, cols+1, nil)

	classWeights := balancedWeights(y, s.NBins)
	upper := make([]float64, rows)
	qii := make([]float64, rows)
	for i := 0; i < rows; i++ {
		upper[i] = s.C * classWeights[y[i]-1]
		qii[i] = floats.Dot(X.RawRowView(i), X.RawRowView(i)) + 1
	}

	for k := 0; k < s.NBins; k++ {
		sign := make([]float64, rows)
		for i := range sign {
			sign[i] = -1
			if y[i] == k+1 {
				sign[i] = 1
			}
		}
		s.solve(X, sign, upper, qii, s.weights.RawRowView(k))
	}

	return nil
}

// solve runs cyclic dual coordinate descent for one binary problem, writing [w, b] into w
func (s *LinearSVC) solve(X *mat64.Dense, sign, upper, qii, w []float64) {
	rows, cols := X.Dims()
	alpha := make([]float64, rows)

	for pass := 0; pass < s.MaxPass; pass++ {
		maxPG, minPG := -1e300, 1e300

		for i := 0; i < rows; i++ {
			x := X.RawRowView(i)
			g := sign[i]*(floats.Dot(w[:cols], x)+w[cols]) - 1

			pg := g
			if alpha[i] == 0 {
				pg = min(g, 0)
			} else if alpha[i] == upper[i] {
				pg = max(g, 0)
			}
			maxPG = max(maxPG, pg)
			minPG = min(minPG, pg)

			if pg == 0 {
				continue
			}

			old := alpha[i]
			alpha[i] = min(max(alpha[i]-g/qii[i], 0), upper[i])
			if d := (alpha[i] - old) * sign[i]; d != 0 {
				floats.AddScaled(w[:cols], d, x)
				w[cols] += d
			}
		}

		if maxPG-minPG < s.Tol {
			return
		}
	}
}

func (s *LinearSVC) decision(X *mat64.Dense) *mat64.Dense {
	rows, cols := X.Dims()
	if s.weights == nil || cols != s.nVoxels {
		panic(fmt.Sprintf("LinearSVC: predict on %d voxels when fitted on %d", cols, s.nVoxels))
	}

	scores := mat64.NewDense(rows, s.NBins, nil)
	for i := 0; i < rows; i++ {
		x := X.RawRowView(i)
		for k := 0; k < s.NBins; k++ {
			w := s.weights.RawRowView(k)
			scores.Set(i, k, floats.Dot(w[:cols], x)+w[cols])
		}
	}
	return scores
}

// Predict returns the class with the highest decision value
func (s *LinearSVC) Predict(X *mat64.Dense) []int {
	scores := s.decision(X)
	rows, _ := scores.Dims()

	pred := make([]int, rows)
	for i := range pred {
		pred[i] = argmax(scores.RawRowView(i))
	}
	return pred
}

// PredictProba returns zeros. The SVM is not calibrated.
func (s *LinearSVC) PredictProba(X *mat64.Dense) *mat64.Dense {
	rows, _ := X.Dims()
	return mat64.NewDense(rows, s.NBins, nil)
}
