package trainer

import (
	"gonum.org/v1/gonum/stat"

	"github.com/labcheck/labcheck-predict/internal/ml"
)

// evaluate scores the freshly fitted bundle on the held-out slice. The
// fit reports already carry the early-stopping scores; this adds
// accuracy and the occupancy baseline the MAE should be judged against.
func evaluate(bundle *ml.Bundle, valX [][]float64, valOcc, valDoor []float64, regReport, clfReport ml.FitReport) Metrics {
	m := Metrics{
		RegressorMAE:      regReport.ValidationScore,
		RegressorRounds:   regReport.Rounds,
		ClassifierLogLoss: clfReport.ValidationScore,
		ClassifierRounds:  clfReport.Rounds,
	}
	if len(valX) == 0 {
		return m
	}

	correct := 0.0
	for i, x := range valX {
		open := bundle.Classifier.Predict(x) >= 0.5
		if open == (valDoor[i] >= 0.5) {
			correct++
		}
	}
	m.ClassifierAccuracy = correct / float64(len(valX))
	m.MeanOccupancy = stat.Mean(valOcc, nil)
	return m
}
