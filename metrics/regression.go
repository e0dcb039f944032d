// Package metrics provides evaluation metrics over model predictions.
//
// Ground truth is []float32 to line up with dataset label storage;
// predictions are []float64 as produced by the booster. The functions pair
// naturally with custom evaluation callbacks during training.
package metrics

import (
	"math"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

func checkLengths(op string, yTrue []float32, yPred []float64) error {
	if len(yTrue) == 0 {
		return lgberrors.Newf("lightgbm: %s: empty input", op)
	}
	if len(yPred) != len(yTrue) {
		return lgberrors.NewShapeError(op, len(yTrue), len(yPred), "prediction length does not match label length")
	}
	return nil
}

// MSE returns the mean squared error.
func MSE(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("MSE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i, p := range yPred {
		diff := float64(yTrue[i]) - p
		sum += diff * diff
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE returns the root mean squared error.
func RMSE(yTrue []float32, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE returns the mean absolute error.
func MAE(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("MAE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i, p := range yPred {
		sum += math.Abs(float64(yTrue[i]) - p)
	}
	return sum / float64(len(yTrue)), nil
}

// R2 returns the coefficient of determination. It fails when the labels
// have no variance.
func R2(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("R2", yTrue, yPred); err != nil {
		return 0, err
	}
	var mean float64
	for _, v := range yTrue {
		mean += float64(v)
	}
	mean /= float64(len(yTrue))

	var tss, rss float64
	for i, p := range yPred {
		v := float64(yTrue[i])
		tss += (v - mean) * (v - mean)
		rss += (v - p) * (v - p)
	}
	if tss == 0 {
		return 0, lgberrors.New("lightgbm: R2: labels have no variance")
	}
	return 1 - rss/tss, nil
}

// MAPE returns the mean absolute percentage error over the rows with a
// nonzero label.
func MAPE(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("MAPE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	valid := 0
	for i, p := range yPred {
		v := float64(yTrue[i])
		if v == 0 {
			continue
		}
		sum += math.Abs(v-p) / math.Abs(v)
		valid++
	}
	if valid == 0 {
		return 0, lgberrors.New("lightgbm: MAPE: every label is zero")
	}
	return sum / float64(valid) * 100, nil
}
