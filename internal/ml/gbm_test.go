package ml

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

// stepData builds a toy set where the target is a clean step on the first
// feature, which a depth-limited tree ensemble should fit essentially
// exactly.
func stepData() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i)
		x = append(x, []float64{v, math.Mod(v, 7)})
		if v < 20 {
			y = append(y, 2)
		} else {
			y = append(y, 10)
		}
	}
	return x, y
}

func TestLADRegressorLearnsStep(t *testing.T) {
	x, y := stepData()
	model, report, err := FitLADRegressor(x, y, nil, nil, TrainOptions{Rounds: 200, Patience: 20})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if report.Rounds != len(model.Trees) {
		t.Errorf("report says %d rounds but model holds %d trees", report.Rounds, len(model.Trees))
	}
	for i, row := range x {
		got := model.Predict(row)
		if math.Abs(got-y[i]) > 0.5 {
			t.Errorf("row %d: predicted %.3f, want near %.1f", i, got, y[i])
		}
	}
	if report.ValidationScore > 0.5 {
		t.Errorf("validation MAE %.3f, want < 0.5 on separable data", report.ValidationScore)
	}
}

func TestLADRegressorDeterministic(t *testing.T) {
	x, y := stepData()
	a, _, err := FitLADRegressor(x, y, nil, nil, TrainOptions{Rounds: 50, Patience: 10})
	if err != nil {
		t.Fatalf("first fit failed: %v", err)
	}
	b, _, err := FitLADRegressor(x, y, nil, nil, TrainOptions{Rounds: 50, Patience: 10})
	if err != nil {
		t.Fatalf("second fit failed: %v", err)
	}
	if len(a.Trees) != len(b.Trees) {
		t.Fatalf("tree counts differ: %d vs %d", len(a.Trees), len(b.Trees))
	}
	for _, row := range x {
		if math.Abs(a.Predict(row)-b.Predict(row)) > epsilon {
			t.Fatalf("identical fits disagree on %v: %.9f vs %.9f", row, a.Predict(row), b.Predict(row))
		}
	}
}

func TestLADRegressorEarlyStopsOnConstantTarget(t *testing.T) {
	x, _ := stepData()
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 4
	}
	model, report, err := FitLADRegressor(x, y, nil, nil, TrainOptions{Rounds: 100, Patience: 5})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if report.BestRound != 1 {
		t.Errorf("best round = %d, want 1 for a constant target", report.BestRound)
	}
	if len(model.Trees) != 1 {
		t.Errorf("kept %d trees, want ensemble trimmed to the best round", len(model.Trees))
	}
	if got := model.Predict(x[0]); math.Abs(got-4) > epsilon {
		t.Errorf("predicted %.6f, want 4", got)
	}
}

func TestFitRejectsEmptyInput(t *testing.T) {
	if _, _, err := FitLADRegressor(nil, nil, nil, nil, TrainOptions{}); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("regressor: got %v, want ErrNoTrainingData", err)
	}
	if _, _, err := FitLogisticClassifier(nil, nil, nil, nil, TrainOptions{}); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("classifier: got %v, want ErrNoTrainingData", err)
	}
}

func TestLogisticClassifierSeparable(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i)
		x = append(x, []float64{v})
		if v >= 25 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	model, _, err := FitLogisticClassifier(x, y, nil, nil, TrainOptions{Rounds: 300, Patience: 30})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if !model.Logistic {
		t.Fatal("classifier not marked logistic")
	}
	for i, row := range x {
		p := model.Predict(row)
		if p < 0 || p > 1 {
			t.Fatalf("probability %.4f out of range for row %d", p, i)
		}
		if y[i] == 1 && p < 0.5 {
			t.Errorf("row %d: probability %.4f, want >= 0.5 for positive class", i, p)
		}
		if y[i] == 0 && p >= 0.5 {
			t.Errorf("row %d: probability %.4f, want < 0.5 for negative class", i, p)
		}
	}
}

// A heavily imbalanced but separable set should still resolve the minority
// class thanks to balanced sample weights.
func TestLogisticClassifierBalancesRareClass(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 30; i++ {
		x = append(x, []float64{float64(i)})
		if i >= 27 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	model, _, err := FitLogisticClassifier(x, y, nil, nil, TrainOptions{Rounds: 300, Patience: 30, MinLeaf: 1})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for i := 27; i < 30; i++ {
		if p := model.Predict(x[i]); p < 0.5 {
			t.Errorf("minority row %d: probability %.4f, want >= 0.5", i, p)
		}
	}
	if p := model.Predict(x[2]); p >= 0.5 {
		t.Errorf("majority row: probability %.4f, want < 0.5", p)
	}
}

func TestBalancedWeightsSumPerClass(t *testing.T) {
	y := []float64{0, 0, 0, 0, 1}
	w := balancedWeights(y)

	var posSum, negSum float64
	for i, v := range y {
		if v > 0.5 {
			posSum += w[i]
		} else {
			negSum += w[i]
		}
	}
	if math.Abs(posSum-negSum) > epsilon {
		t.Errorf("class weight mass %f vs %f, want equal", posSum, negSum)
	}
	if math.Abs(posSum+negSum-float64(len(y))) > epsilon {
		t.Errorf("total weight %f, want %d", posSum+negSum, len(y))
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"empty", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := median(tc.values); math.Abs(got-tc.want) > epsilon {
				t.Errorf("median(%v) = %v, want %v", tc.values, got, tc.want)
			}
		})
	}
}
