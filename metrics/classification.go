package metrics

import (
	"math"
	"sort"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

// Accuracy returns the fraction of rows where the prediction, thresholded
// at 0.5, matches the binary label.
func Accuracy(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("Accuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i, p := range yPred {
		predicted := float32(0)
		if p >= 0.5 {
			predicted = 1
		}
		if predicted == yTrue[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// LogLoss returns the binary cross-entropy of predicted probabilities.
// Predictions are clipped away from 0 and 1 to keep the result finite.
func LogLoss(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("LogLoss", yTrue, yPred); err != nil {
		return 0, err
	}
	const eps = 1e-15
	var sum float64
	for i, p := range yPred {
		p = math.Min(math.Max(p, eps), 1-eps)
		if yTrue[i] != 0 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(yTrue)), nil
}

// AUC returns the area under the ROC curve for binary labels, computed via
// the rank statistic with ties sharing their average rank.
func AUC(yTrue []float32, yPred []float64) (float64, error) {
	if err := checkLengths("AUC", yTrue, yPred); err != nil {
		return 0, err
	}

	order := make([]int, len(yPred))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return yPred[order[a]] < yPred[order[b]] })

	ranks := make([]float64, len(yPred))
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && yPred[order[j]] == yPred[order[i]] {
			j++
		}
		// 1-based ranks, averaged across the tie group.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var positives int
	var rankSum float64
	for i, v := range yTrue {
		if v != 0 {
			positives++
			rankSum += ranks[i]
		}
	}
	negatives := len(yTrue) - positives
	if positives == 0 || negatives == 0 {
		return 0, lgberrors.New("lightgbm: AUC: needs both classes present")
	}

	nPos := float64(positives)
	nNeg := float64(negatives)
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}
