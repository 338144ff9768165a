package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoTrainingData is returned when a fit is attempted on an empty set.
var ErrNoTrainingData = errors.New("ml: no training data")

// TrainOptions control a boosting run. Zero values fall back to the
// defaults the trainer uses in production.
type TrainOptions struct {
	Rounds       int     // maximum boosting rounds
	LearningRate float64 // shrinkage applied to every tree
	MaxDepth     int     // per-tree depth limit
	MinLeaf      int     // minimum samples per leaf
	Patience     int     // rounds without validation improvement before stopping
	Logf         func(format string, args ...interface{})
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Rounds <= 0 {
		o.Rounds = 1000
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.05
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 5
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = 2
	}
	if o.Patience <= 0 {
		o.Patience = 100
	}
	return o
}

// FitReport summarizes a completed boosting run.
type FitReport struct {
	Rounds          int     // trees kept after early stopping
	BestRound       int     // 1-based round that produced ValidationScore
	ValidationScore float64 // MAE for the regressor, weighted log-loss for the classifier
}

// GBM is a fitted gradient-boosted tree ensemble. Predictions are
// Base + LearningRate * sum of tree outputs; the classifier additionally
// squashes that raw score through a sigmoid.
type GBM struct {
	Base         float64 `msgpack:"base"`
	LearningRate float64 `msgpack:"lr"`
	Trees        []*Tree `msgpack:"trees"`
	Logistic     bool    `msgpack:"logistic"`
}

func (g *GBM) raw(x []float64) float64 {
	score := g.Base
	for _, t := range g.Trees {
		score += g.LearningRate * t.Predict(x)
	}
	return score
}

// Predict returns the model output for one feature vector: the predicted
// value for a regressor, the positive-class probability for a classifier.
func (g *GBM) Predict(x []float64) float64 {
	if g.Logistic {
		return sigmoid(g.raw(x))
	}
	return g.raw(x)
}

// FitLADRegressor fits a least-absolute-deviation boosted ensemble. Trees
// are grown on the sign of the current residual and each leaf outputs the
// median residual of its samples, so the ensemble optimizes MAE directly.
// Validation MAE drives early stopping; if valX is empty the training set
// stands in for it.
func FitLADRegressor(trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, opts TrainOptions) (*GBM, FitReport, error) {
	opts = opts.withDefaults()
	if len(trainX) == 0 {
		return nil, FitReport{}, ErrNoTrainingData
	}
	if len(trainX) != len(trainY) {
		return nil, FitReport{}, fmt.Errorf("ml: %d feature rows for %d targets", len(trainX), len(trainY))
	}
	if len(valX) == 0 {
		valX, valY = trainX, trainY
	}

	model := &GBM{Base: median(trainY), LearningRate: opts.LearningRate}

	weights := make([]float64, len(trainX))
	for i := range weights {
		weights[i] = 1
	}
	pred := make([]float64, len(trainX))
	for i := range pred {
		pred[i] = model.Base
	}
	valPred := make([]float64, len(valX))
	for i := range valPred {
		valPred[i] = model.Base
	}
	residual := make([]float64, len(trainX))
	signs := make([]float64, len(trainX))
	indices := allIndices(len(trainX))

	builder := &treeBuilder{
		x:        trainX,
		target:   signs,
		weight:   weights,
		maxDepth: opts.MaxDepth,
		minLeaf:  opts.MinLeaf,
		leafValue: func(leaf []int) float64 {
			vals := make([]float64, len(leaf))
			for j, i := range leaf {
				vals[j] = residual[i]
			}
			return median(vals)
		},
	}

	bestScore := math.Inf(1)
	bestRound := 0

	for round := 1; round <= opts.Rounds; round++ {
		for i := range trainY {
			residual[i] = trainY[i] - pred[i]
			signs[i] = sign(residual[i])
		}

		tree := builder.buildTree(indices)
		model.Trees = append(model.Trees, tree)
		for i := range pred {
			pred[i] += opts.LearningRate * tree.Predict(trainX[i])
		}
		for i := range valPred {
			valPred[i] += opts.LearningRate * tree.Predict(valX[i])
		}

		score := meanAbsError(valPred, valY)
		if score < bestScore {
			bestScore = score
			bestRound = round
		}
		if opts.Logf != nil {
			opts.Logf("regressor round %d: validation MAE %.5f (best %.5f @ %d)", round, score, bestScore, bestRound)
		}
		if round-bestRound >= opts.Patience {
			break
		}
	}

	model.Trees = model.Trees[:bestRound]
	return model, FitReport{Rounds: bestRound, BestRound: bestRound, ValidationScore: bestScore}, nil
}

// FitLogisticClassifier fits a boosted binary classifier with balanced
// class weights. Trees are grown on the weighted gradient y - p and leaf
// outputs take a single Newton step; weighted log-loss on the validation
// slice drives early stopping.
func FitLogisticClassifier(trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, opts TrainOptions) (*GBM, FitReport, error) {
	opts = opts.withDefaults()
	if len(trainX) == 0 {
		return nil, FitReport{}, ErrNoTrainingData
	}
	if len(trainX) != len(trainY) {
		return nil, FitReport{}, fmt.Errorf("ml: %d feature rows for %d targets", len(trainX), len(trainY))
	}
	if len(valX) == 0 {
		valX, valY = trainX, trainY
	}

	weights := balancedWeights(trainY)

	var sumW, sumWY float64
	for i, y := range trainY {
		sumW += weights[i]
		sumWY += weights[i] * y
	}
	baseRate := clampProb(sumWY / sumW)

	model := &GBM{
		Base:         math.Log(baseRate / (1 - baseRate)),
		LearningRate: opts.LearningRate,
		Logistic:     true,
	}

	score := make([]float64, len(trainX))
	for i := range score {
		score[i] = model.Base
	}
	valScore := make([]float64, len(valX))
	for i := range valScore {
		valScore[i] = model.Base
	}
	prob := make([]float64, len(trainX))
	grad := make([]float64, len(trainX))
	indices := allIndices(len(trainX))

	builder := &treeBuilder{
		x:        trainX,
		target:   grad,
		weight:   weights,
		maxDepth: opts.MaxDepth,
		minLeaf:  opts.MinLeaf,
		leafValue: func(leaf []int) float64 {
			var num, den float64
			for _, i := range leaf {
				num += weights[i] * (trainY[i] - prob[i])
				den += weights[i] * prob[i] * (1 - prob[i])
			}
			if den < 1e-9 {
				den = 1e-9
			}
			return num / den
		},
	}

	valWeights := balancedWeights(valY)
	bestScore := math.Inf(1)
	bestRound := 0

	for round := 1; round <= opts.Rounds; round++ {
		for i := range trainY {
			prob[i] = sigmoid(score[i])
			grad[i] = trainY[i] - prob[i]
		}

		tree := builder.buildTree(indices)
		model.Trees = append(model.Trees, tree)
		for i := range score {
			score[i] += opts.LearningRate * tree.Predict(trainX[i])
		}
		for i := range valScore {
			valScore[i] += opts.LearningRate * tree.Predict(valX[i])
		}

		loss := weightedLogLoss(valScore, valY, valWeights)
		if loss < bestScore {
			bestScore = loss
			bestRound = round
		}
		if opts.Logf != nil {
			opts.Logf("classifier round %d: validation log-loss %.5f (best %.5f @ %d)", round, loss, bestScore, bestRound)
		}
		if round-bestRound >= opts.Patience {
			break
		}
	}

	model.Trees = model.Trees[:bestRound]
	return model, FitReport{Rounds: bestRound, BestRound: bestRound, ValidationScore: bestScore}, nil
}

// balancedWeights weights each sample inversely to its class frequency,
// so a rare positive class is not drowned out by the majority.
func balancedWeights(y []float64) []float64 {
	var pos float64
	for _, v := range y {
		if v > 0.5 {
			pos++
		}
	}
	neg := float64(len(y)) - pos
	n := float64(len(y))

	weights := make([]float64, len(y))
	for i, v := range y {
		if v > 0.5 {
			if pos > 0 {
				weights[i] = n / (2 * pos)
			}
		} else {
			if neg > 0 {
				weights[i] = n / (2 * neg)
			}
		}
	}
	return weights
}

func weightedLogLoss(scores, y, weights []float64) float64 {
	var loss, sumW float64
	for i, s := range scores {
		p := clampProb(sigmoid(s))
		if y[i] > 0.5 {
			loss -= weights[i] * math.Log(p)
		} else {
			loss -= weights[i] * math.Log(1-p)
		}
		sumW += weights[i]
	}
	if sumW == 0 {
		return 0
	}
	return loss / sumW
}

func meanAbsError(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	var sum float64
	for i := range pred {
		sum += math.Abs(pred[i] - actual[i])
	}
	return sum / float64(len(pred))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func sigmoid(x float64) float64 {
	if x < -30 {
		x = -30
	} else if x > 30 {
		x = 30
	}
	return 1 / (1 + math.Exp(-x))
}

func clampProb(p float64) float64 {
	const eps = 1e-7
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
