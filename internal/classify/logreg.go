package classify

import (
	"fmt"
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a multinomial L2-regularized logistic regression with balanced class weights
type LogisticRegression struct {
	C                 float64
	MaxIter           int
	GradientThreshold float64
	NBins             int

	weights *mat64.Dense // NBins by voxels
	bias    []float64
}

// NewLogisticRegression returns an unfitted LogisticRegression
func NewLogisticRegression(nBins int) *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 1000, GradientThreshold: 1e-4, NBins: nBins}
}

// Fit minimizes C * weighted cross-entropy + 0.5 * |W|^2 with L-BFGS. The intercept is not penalized.
func (l *LogisticRegression) Fit(X *mat64.Dense, y []int) error {
	if err := checkLabels("LogisticRegression", X, y, l.NBins); err != nil {
		return err
	}

	rows, cols := X.Dims()
	K := l.NBins
	nW := K * cols

	classWeights := balancedWeights(y, K)
	sampleWeights := make([]float64, rows)
	for i, label := range y {
		sampleWeights[i] = l.C * classWeights[label-1]
	}

	scores := mat64.NewDense(rows, K, nil)
	dScores := mat64.NewDense(rows, K, nil)

	// forward fills scores with softmax probabilities and returns the loss
	forward := func(x []float64) float64 {
		W := mat64.NewDense(K, cols, x[:nW])
		scores.Mul(X, W.T())

		loss := 0.0
		for i := 0; i < rows; i++ {
			row := scores.RawRowView(i)
			floats.Add(row, x[nW:])
			loss += sampleWeights[i] * (logSumExp(row) - row[y[i]-1])
			softmax(row)
		}
		return loss + 0.5*floats.Dot(x[:nW], x[:nW])
	}

	problem := optimize.Problem{
		Func: forward,
		Grad: func(grad, x []float64) {
			forward(x)

			for i := 0; i < rows; i++ {
				p := scores.RawRowView(i)
				d := dScores.RawRowView(i)
				for k := range d {
					d[k] = p[k]
					if k == y[i]-1 {
						d[k]--
					}
					d[k] *= sampleWeights[i]
				}
			}

			gW := mat64.NewDense(K, cols, grad[:nW])
			gW.Mul(dScores.T(), X)
			floats.Add(grad[:nW], x[:nW])

			gb := grad[nW:]
			for k := range gb {
				gb[k] = 0
			}
			for i := 0; i < rows; i++ {
				floats.Add(gb, dScores.RawRowView(i))
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   l.MaxIter,
		GradientThreshold: l.GradientThreshold,
	}

	result, err := optimize.Minimize(problem, make([]float64, nW+K), settings, &optimize.LBFGS{})
	if err != nil {
		if result == nil || len(result.X) != nW+K {
			return fmt.Errorf("LogisticRegression: %v", err)
		}
		log.WithError(err).Warn("logistic regression did not converge, keeping the last iterate")
	}

	l.weights = mat64.NewDense(K, cols, append([]float64(nil), result.X[:nW]...))
	l.bias = append([]float64(nil), result.X[nW:]...)

	return nil
}

func (l *LogisticRegression) decision(X *mat64.Dense) *mat64.Dense {
	rows, cols := X.Dims()
	if l.weights == nil {
		panic("LogisticRegression: predict before fit")
	}
	if _, c := l.weights.Dims(); c != cols {
		panic(fmt.Sprintf("LogisticRegression: predict on %d voxels when fitted on %d", cols, c))
	}

	scores := mat64.NewDense(rows, l.NBins, nil)
	scores.Mul(X, l.weights.T())
	for i := 0; i < rows; i++ {
		floats.Add(scores.RawRowView(i), l.bias)
	}
	return scores
}

// Predict returns the most probable class
func (l *LogisticRegression) Predict(X *mat64.Dense) []int {
	scores := l.decision(X)
	rows, _ := scores.Dims()

	pred := make([]int, rows)
	for i := range pred {
		pred[i] = argmax(scores.RawRowView(i))
	}
	return pred
}

// PredictProba returns softmax class probabilities
func (l *LogisticRegression) PredictProba(X *mat64.Dense) *mat64.Dense {
	scores := l.decision(X)
	rows, _ := scores.Dims()
	for i := 0; i < rows; i++ {
		softmax(scores.RawRowView(i))
	}
	return scores
}

func logSumExp(row []float64) float64 {
	m := floats.Max(row)
	sum := 0.0
	for _, v := range row {
		sum += math.Exp(v - m)
	}
	return m + math.Log(sum)
}

// softmax works in place
func softmax(row []float64) {
	m := floats.Max(row)
	for k, v := range row {
		row[k] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(row), row)
}
