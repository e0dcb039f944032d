package lightgbm

import (
	"fmt"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// KFoldSplitter generates cross-validation folds over numRows rows.
// labels may be nil for splitters that do not stratify.
type KFoldSplitter interface {
	Split(numRows int, labels []float32) []CVFold
	GetNSplits() int
}

// CVFold is one train/test index split.
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rows into k contiguous (optionally shuffled) folds.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a k-fold splitter; fewer than 2 splits falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int { return kf.NSplits }

// Split generates train/test indices for each fold.
func (kf *KFold) Split(numRows int, _ []float32) []CVFold {
	indices := make([]int, numRows)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomSeed), uint64(kf.RandomSeed)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]CVFold, kf.NSplits)
	foldSize := numRows / kf.NSplits
	remainder := numRows % kf.NSplits

	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])
		train := make([]int, 0, numRows-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)
		folds[i] = CVFold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds
}

// StratifiedKFold splits rows into k folds preserving per-class
// proportions.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a stratified splitter; fewer than 2 splits
// falls back to 5.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int { return skf.NSplits }

// Split generates stratified train/test indices for each fold, spreading
// every label class across folds.
func (skf *StratifiedKFold) Split(numRows int, labels []float32) []CVFold {
	classIndices := make(map[float32][]int)
	var classOrder []float32
	for i := 0; i < numRows; i++ {
		var label float32
		if i < len(labels) {
			label = labels[i]
		}
		if _, seen := classIndices[label]; !seen {
			classOrder = append(classOrder, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}

	if skf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(skf.RandomSeed), uint64(skf.RandomSeed)))
		for _, label := range classOrder {
			indices := classIndices[label]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	folds := make([]CVFold, skf.NSplits)
	for _, label := range classOrder {
		indices := classIndices[label]
		nClass := len(indices)
		foldSize := nClass / skf.NSplits
		remainder := nClass % skf.NSplits

		current := 0
		for i := 0; i < skf.NSplits; i++ {
			testSize := foldSize
			if i < remainder {
				testSize++
			}
			folds[i].TestIndices = append(folds[i].TestIndices, indices[current:current+testSize]...)
			current += testSize
		}
	}

	for i := range folds {
		inTest := make(map[int]bool, len(folds[i].TestIndices))
		for _, idx := range folds[i].TestIndices {
			inTest[idx] = true
		}
		for j := 0; j < numRows; j++ {
			if !inTest[j] {
				folds[i].TrainIndices = append(folds[i].TrainIndices, j)
			}
		}
	}
	return folds
}

// CVBooster holds the per-fold boosters of a cross-validation run.
type CVBooster struct {
	Boosters      []*Booster
	BestIteration int
}

// Close releases every fold booster.
func (cv *CVBooster) Close() error {
	var firstErr error
	for _, b := range cv.Boosters {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CVResult is the aggregated cross-validation history: per metric, the
// mean and sample standard deviation across folds at every iteration.
type CVResult struct {
	// History maps "<metric>-mean" and "<metric>-stdv" to one value per
	// completed iteration. When early stopping fires the series are
	// truncated to the best iteration.
	History map[string][]float64
	// Folds holds the fold boosters, each trained to the same iteration.
	Folds *CVBooster
}

// CV cross-validates a parameter set: every fold booster advances in
// lockstep one iteration at a time, validation metrics are aggregated
// across folds, and early stopping acts on the aggregated means. The
// caller owns the returned fold boosters.
func CV(params Params, data *Dataset, splitter KFoldSplitter, opts ...TrainOption) (*CVResult, error) {
	cfg := newTrainConfig(opts)
	logger := log.GetLogger().With(log.ComponentKey, "cv")

	if splitter == nil {
		splitter = NewKFold(5, true, 0)
	}
	initIteration := 0
	if cfg.initModelPath != "" {
		pred, err := NewPredictorFromFile(cfg.initModelPath)
		if err != nil {
			return nil, err
		}
		defer pred.Close()
		initIteration = pred.NumTotalIterations()
		if err := data.setPredictor(pred); err != nil {
			return nil, err
		}
	}
	if err := data.Construct(); err != nil {
		return nil, err
	}
	rows, err := data.NumRows()
	if err != nil {
		return nil, err
	}
	labels, err := data.GetLabel()
	if err != nil {
		return nil, err
	}
	folds := splitter.Split(rows, labels)
	logger.Info("cross-validation started", log.FoldsKey, len(folds))

	cvb := &CVBooster{}
	ok := false
	defer func() {
		if !ok {
			_ = cvb.Close()
		}
	}()
	for i, fold := range folds {
		trainSub := data.Subset(fold.TrainIndices, nil)
		validSub := data.Subset(fold.TestIndices, nil)
		b, err := NewBooster(params, trainSub)
		if err != nil {
			return nil, lgberrors.Wrapf(err, "building fold %d", i)
		}
		cvb.Boosters = append(cvb.Boosters, b)
		if err := b.AddValid(validSub, fmt.Sprintf("fold%d", i)); err != nil {
			return nil, lgberrors.Wrapf(err, "building fold %d", i)
		}
	}

	history := make(map[string][]float64)
	callbacks := cfg.assembleCallbacks()
	completed := 0

	endIteration := initIteration + cfg.numIterations
	for iteration := initIteration; iteration < endIteration; iteration++ {
		env := &CallbackEnv{
			CVFolds:        cvb,
			Params:         params,
			Iteration:      iteration,
			BeginIteration: initIteration,
			EndIteration:   endIteration,
		}
		for _, cb := range callbacks {
			if err := cb.BeforeIteration(env); err != nil {
				return nil, err
			}
		}

		agg, err := cvStep(cvb.Boosters, cfg)
		if err != nil {
			return nil, lgberrors.Wrapf(err, "iteration %d", iteration)
		}
		for _, a := range agg {
			history[a.MetricName+"-mean"] = append(history[a.MetricName+"-mean"], a.Value)
			history[a.MetricName+"-stdv"] = append(history[a.MetricName+"-stdv"], a.stdv)
		}
		completed = iteration - initIteration + 1

		env.EvalResults = make([]EvalResult, len(agg))
		for i, a := range agg {
			env.EvalResults[i] = a.EvalResult
		}
		stopped := false
		for _, cb := range callbacks {
			if err := cb.AfterIteration(env); err != nil {
				var es *EarlyStopError
				if errors.As(err, &es) {
					cvb.BestIteration = es.BestIteration
					for _, b := range cvb.Boosters {
						b.SetBestIteration(es.BestIteration)
					}
					completed = es.BestIteration - initIteration
					stopped = true
					break
				}
				return nil, err
			}
		}
		if stopped {
			break
		}
	}

	for key := range history {
		if len(history[key]) > completed {
			history[key] = history[key][:completed]
		}
	}
	ok = true
	return &CVResult{History: history, Folds: cvb}, nil
}

// aggResult is one metric aggregated across folds.
type aggResult struct {
	EvalResult
	stdv float64
}

// cvStep advances every fold one iteration and aggregates the validation
// metrics across folds.
func cvStep(boosters []*Booster, cfg *trainConfig) ([]aggResult, error) {
	perFold := make([][]EvalResult, len(boosters))
	for i, b := range boosters {
		if _, err := b.updateWith(cfg.fobj); err != nil {
			return nil, err
		}
		res, err := b.EvalValid(cfg.fevals...)
		if err != nil {
			return nil, err
		}
		perFold[i] = res
	}
	if len(perFold[0]) == 0 {
		return nil, nil
	}

	agg := make([]aggResult, len(perFold[0]))
	values := make([]float64, len(boosters))
	for m, first := range perFold[0] {
		for f := range boosters {
			if m >= len(perFold[f]) || perFold[f][m].MetricName != first.MetricName {
				return nil, lgberrors.New("lightgbm: folds reported different metric sets")
			}
			values[f] = perFold[f][m].Value
		}
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) < 2 {
			std = 0
		}
		agg[m] = aggResult{
			EvalResult: EvalResult{
				DatasetName:  "cv_agg",
				MetricName:   first.MetricName,
				Value:        mean,
				HigherBetter: first.HigherBetter,
			},
			stdv: std,
		}
	}
	return agg, nil
}
