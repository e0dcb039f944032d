package lightgbm

import (
	"encoding/json"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// EvalResult is one metric evaluated on one dataset at the current
// iteration.
type EvalResult struct {
	DatasetName  string
	MetricName   string
	Value        float64
	HigherBetter bool
}

// EvalFunc is a user-supplied evaluation metric. preds holds the model's
// current-iteration predictions over ds, laid out class-major for
// multi-class models (all rows of class 0, then class 1, ...).
type EvalFunc func(preds []float64, ds *Dataset) (name string, value float64, higherBetter bool, err error)

// ObjectiveFunc is a user-supplied training objective. It receives the
// current-iteration predictions (class-major, like EvalFunc) and returns
// the gradient and hessian per prediction in the same layout.
type ObjectiveFunc func(preds []float64, ds *Dataset) (grad, hess []float32, err error)

// Booster is a gradient-boosting model.
//
// A Booster built with NewBooster is in training mode: it holds its
// training dataset, accepts validation sets, and advances one iteration at
// a time. A Booster built with NewBoosterFromFile is in inference mode and
// rejects training operations.
//
// Per-dataset prediction buffers are allocated once and reused; a
// per-iteration flag marks each buffer fresh until the next Update,
// UpdateCustom or RollbackOneIter invalidates it. Repeated evaluation
// within one iteration therefore never re-predicts.
type Booster struct {
	eng    engine.API
	handle engine.BoosterHandle
	params Params

	trainSet      *Dataset
	validSets     []*Dataset
	nameValidSets []string
	trainDataName string
	initPredictor *Predictor

	numClass     int
	evalNames    []string
	higherBetter []bool

	predictBuf       [][]float64
	predictedCurIter []bool

	attr          map[string]string
	bestIteration int
	trainMode     bool
	closed        bool

	log log.Logger
}

// NewBooster creates a training-mode Booster over a training dataset,
// constructing it if necessary.
func NewBooster(params Params, trainSet *Dataset) (*Booster, error) {
	eng, err := requireEngine()
	if err != nil {
		return nil, err
	}
	if err := trainSet.Construct(); err != nil {
		return nil, err
	}
	paramsStr, err := serializeParams(params)
	if err != nil {
		return nil, err
	}
	handle, err := eng.BoosterCreate(trainSet.handle, paramsStr)
	if err != nil {
		return nil, err
	}
	// Continued training: the loaded model's trees become the starting
	// point of the fresh booster.
	if trainSet.predictor != nil {
		if err := eng.BoosterMerge(handle, trainSet.predictor.handle); err != nil {
			_ = eng.BoosterFree(handle)
			return nil, lgberrors.Wrap(err, "merging continuation model")
		}
	}
	numClass, err := eng.BoosterNumClasses(handle)
	if err != nil {
		_ = eng.BoosterFree(handle)
		return nil, err
	}
	return &Booster{
		eng:              eng,
		handle:           handle,
		params:           params.Copy(),
		trainSet:         trainSet,
		trainDataName:    "training",
		initPredictor:    trainSet.predictor,
		numClass:         numClass,
		predictBuf:       make([][]float64, 1),
		predictedCurIter: make([]bool, 1),
		attr:             make(map[string]string),
		trainMode:        true,
		log:              log.GetLogger().With(log.ComponentKey, "booster"),
	}, nil
}

// NewBoosterFromFile loads a serialized model into an inference-mode
// Booster.
func NewBoosterFromFile(path string) (*Booster, error) {
	eng, err := requireEngine()
	if err != nil {
		return nil, err
	}
	handle, _, err := eng.BoosterCreateFromFile(path)
	if err != nil {
		return nil, lgberrors.Wrapf(err, "loading model from %s", path)
	}
	numClass, err := eng.BoosterNumClasses(handle)
	if err != nil {
		_ = eng.BoosterFree(handle)
		return nil, err
	}
	return &Booster{
		eng:      eng,
		handle:   handle,
		params:   Params{},
		numClass: numClass,
		attr:     make(map[string]string),
		log:      log.GetLogger().With(log.ComponentKey, "booster"),
	}, nil
}

func (b *Booster) requireTrainMode(op string) error {
	if b.closed {
		return lgberrors.New("lightgbm: booster is closed")
	}
	if !b.trainMode {
		return lgberrors.Newf("lightgbm: %s requires a booster created for training, not one loaded from a model file", op)
	}
	return nil
}

// NumClasses returns the model's class count.
func (b *Booster) NumClasses() int { return b.numClass }

// SetTrainDataName names the training dataset in evaluation results.
func (b *Booster) SetTrainDataName(name string) { b.trainDataName = name }

// TrainSet returns the training dataset, or nil in inference mode.
func (b *Booster) TrainSet() *Dataset { return b.trainSet }

// AddValid registers a validation dataset for per-iteration evaluation.
// The dataset must descend from the same continuation predictor as the
// training set so its init score aligns with the model.
func (b *Booster) AddValid(data *Dataset, name string) error {
	if err := b.requireTrainMode("AddValid"); err != nil {
		return err
	}
	if data.predictor != b.initPredictor {
		return lgberrors.NewLineageMismatchError("AddValid")
	}
	if err := data.Construct(); err != nil {
		return err
	}
	if err := b.eng.BoosterAddValidData(b.handle, data.handle); err != nil {
		return err
	}
	b.validSets = append(b.validSets, data)
	b.nameValidSets = append(b.nameValidSets, name)
	b.predictBuf = append(b.predictBuf, nil)
	b.predictedCurIter = append(b.predictedCurIter, false)
	return nil
}

// ResetTrainingData swaps the training dataset, subject to the same
// lineage rule as AddValid.
func (b *Booster) ResetTrainingData(train *Dataset) error {
	if err := b.requireTrainMode("ResetTrainingData"); err != nil {
		return err
	}
	if train.predictor != b.initPredictor {
		return lgberrors.NewLineageMismatchError("ResetTrainingData")
	}
	if err := train.Construct(); err != nil {
		return err
	}
	if err := b.eng.BoosterResetTrainingData(b.handle, train.handle); err != nil {
		return err
	}
	b.trainSet = train
	b.predictBuf[0] = nil
	b.predictedCurIter[0] = false
	return nil
}

// ResetParameter changes engine parameters mid-training. Changing the
// metric set invalidates the cached metric names so the next evaluation
// reloads them.
func (b *Booster) ResetParameter(params Params) error {
	if b.closed {
		return lgberrors.New("lightgbm: booster is closed")
	}
	paramsStr, err := serializeParams(params)
	if err != nil {
		return err
	}
	if err := b.eng.BoosterResetParameter(b.handle, paramsStr); err != nil {
		return err
	}
	if _, ok := params["metric"]; ok {
		b.evalNames = nil
		b.higherBetter = nil
	}
	for k, v := range params {
		b.params[k] = v
	}
	return nil
}

// Update advances training by one iteration using the configured objective
// and reports whether the engine declares training finished.
func (b *Booster) Update() (finished bool, err error) {
	if err := b.requireTrainMode("Update"); err != nil {
		return false, err
	}
	finished, err = b.eng.BoosterUpdateOneIter(b.handle)
	if err != nil {
		return false, err
	}
	b.invalidatePredictions()
	return finished, nil
}

// UpdateCustom advances training by one iteration with externally computed
// gradients and hessians, laid out class-major like EvalFunc predictions.
func (b *Booster) UpdateCustom(grad, hess []float32) (finished bool, err error) {
	if err := b.requireTrainMode("UpdateCustom"); err != nil {
		return false, err
	}
	if len(grad) != len(hess) {
		return false, lgberrors.NewShapeError("UpdateCustom", len(grad), len(hess),
			"gradient and hessian lengths differ")
	}
	rows, err := b.trainSet.NumRows()
	if err != nil {
		return false, err
	}
	if len(grad) != rows*b.numClass {
		return false, lgberrors.NewShapeError("UpdateCustom", rows*b.numClass, len(grad),
			"gradient length does not cover rows x classes")
	}
	finished, err = b.eng.BoosterUpdateOneIterCustom(b.handle, grad, hess)
	if err != nil {
		return false, err
	}
	b.invalidatePredictions()
	return finished, nil
}

// updateWith runs one iteration, delegating to the custom-gradient path
// when an objective function is supplied.
func (b *Booster) updateWith(fobj ObjectiveFunc) (finished bool, err error) {
	if fobj == nil {
		return b.Update()
	}
	preds, err := b.innerPredict(0)
	if err != nil {
		return false, err
	}
	grad, hess, err := fobj(preds, b.trainSet)
	if err != nil {
		return false, lgberrors.Wrap(err, "custom objective")
	}
	return b.UpdateCustom(grad, hess)
}

// RollbackOneIter removes the most recent iteration.
func (b *Booster) RollbackOneIter() error {
	if err := b.requireTrainMode("RollbackOneIter"); err != nil {
		return err
	}
	if err := b.eng.BoosterRollbackOneIter(b.handle); err != nil {
		return err
	}
	b.invalidatePredictions()
	return nil
}

// CurrentIteration returns the number of completed iterations.
func (b *Booster) CurrentIteration() (int, error) {
	return b.eng.BoosterCurrentIteration(b.handle)
}

func (b *Booster) invalidatePredictions() {
	for i := range b.predictedCurIter {
		b.predictedCurIter[i] = false
	}
}

// loadEvalInfo (re)loads the engine's metric names and derives each
// metric's direction. A metric is higher-is-better exactly when its name
// starts with "auc" or "ndcg".
func (b *Booster) loadEvalInfo() error {
	if b.evalNames != nil {
		return nil
	}
	names, err := b.eng.BoosterEvalNames(b.handle)
	if err != nil {
		return err
	}
	b.evalNames = names
	b.higherBetter = make([]bool, len(names))
	for i, name := range names {
		b.higherBetter[i] = metricHigherBetter(name)
	}
	return nil
}

func metricHigherBetter(name string) bool {
	return strings.HasPrefix(name, "auc") || strings.HasPrefix(name, "ndcg")
}

// EvalTrain evaluates all configured metrics, plus any custom metrics, on
// the training set.
func (b *Booster) EvalTrain(fevals ...EvalFunc) ([]EvalResult, error) {
	if err := b.requireTrainMode("EvalTrain"); err != nil {
		return nil, err
	}
	return b.evalAt(0, b.trainDataName, fevals)
}

// EvalValid evaluates all configured metrics, plus any custom metrics, on
// every registered validation set.
func (b *Booster) EvalValid(fevals ...EvalFunc) ([]EvalResult, error) {
	if err := b.requireTrainMode("EvalValid"); err != nil {
		return nil, err
	}
	var out []EvalResult
	for i, name := range b.nameValidSets {
		res, err := b.evalAt(i+1, name, fevals)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// Eval evaluates on one dataset, which must be the training set or a
// registered validation set.
func (b *Booster) Eval(data *Dataset, name string, fevals ...EvalFunc) ([]EvalResult, error) {
	if err := b.requireTrainMode("Eval"); err != nil {
		return nil, err
	}
	if data == b.trainSet {
		return b.evalAt(0, name, fevals)
	}
	for i, v := range b.validSets {
		if v == data {
			return b.evalAt(i+1, name, fevals)
		}
	}
	return nil, lgberrors.New("lightgbm: Eval requires the training set or a dataset previously passed to AddValid")
}

func (b *Booster) evalAt(dataIdx int, dataName string, fevals []EvalFunc) ([]EvalResult, error) {
	if err := b.loadEvalInfo(); err != nil {
		return nil, err
	}
	var out []EvalResult
	if len(b.evalNames) > 0 {
		values, err := b.eng.BoosterGetEval(b.handle, dataIdx)
		if err != nil {
			return nil, err
		}
		if len(values) != len(b.evalNames) {
			return nil, lgberrors.NewShapeError("eval", len(b.evalNames), len(values),
				"metric value count does not match metric name count")
		}
		for i, v := range values {
			out = append(out, EvalResult{
				DatasetName:  dataName,
				MetricName:   b.evalNames[i],
				Value:        v,
				HigherBetter: b.higherBetter[i],
			})
		}
	}
	for _, feval := range fevals {
		preds, err := b.innerPredict(dataIdx)
		if err != nil {
			return nil, err
		}
		ds := b.trainSet
		if dataIdx > 0 {
			ds = b.validSets[dataIdx-1]
		}
		name, value, higher, err := feval(preds, ds)
		if err != nil {
			return nil, lgberrors.Wrap(err, "custom eval")
		}
		out = append(out, EvalResult{
			DatasetName:  dataName,
			MetricName:   name,
			Value:        value,
			HigherBetter: higher,
		})
	}
	return out, nil
}

// innerPredict returns the cached current-iteration predictions for the
// dataset at dataIdx (0 = training set). The buffer is allocated once per
// dataset; the engine refills it only when the iteration flag is stale.
func (b *Booster) innerPredict(dataIdx int) ([]float64, error) {
	if dataIdx >= len(b.predictBuf) {
		return nil, lgberrors.Newf("lightgbm: no dataset registered at index %d", dataIdx)
	}
	if b.predictBuf[dataIdx] == nil {
		ds := b.trainSet
		if dataIdx > 0 {
			ds = b.validSets[dataIdx-1]
		}
		rows, err := ds.NumRows()
		if err != nil {
			return nil, err
		}
		b.predictBuf[dataIdx] = make([]float64, rows*b.numClass)
	}
	if !b.predictedCurIter[dataIdx] {
		n, err := b.eng.BoosterGetPredict(b.handle, dataIdx, b.predictBuf[dataIdx])
		if err != nil {
			return nil, err
		}
		if n != len(b.predictBuf[dataIdx]) {
			return nil, lgberrors.NewShapeError("inner predict", len(b.predictBuf[dataIdx]), n,
				"engine prediction count does not match rows x classes")
		}
		b.predictedCurIter[dataIdx] = true
	}
	return b.predictBuf[dataIdx], nil
}

// Predict scores an arbitrary data source against the current model
// through a temporary borrowed predictor.
func (b *Booster) Predict(data interface{}, opts *PredictOptions) (*mat.Dense, error) {
	p, err := b.Predictor()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Predict(data, opts)
}

// PredictLeaf returns per-row leaf indices, one per tree.
func (b *Booster) PredictLeaf(data interface{}, opts *PredictOptions) ([][]int32, error) {
	p, err := b.Predictor()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.PredictLeaf(data, opts)
}

// Predictor returns a borrowed Predictor sharing this Booster's handle.
// It snapshots the current iteration count; the Booster keeps ownership of
// the handle.
func (b *Booster) Predictor() (*Predictor, error) {
	if b.closed {
		return nil, lgberrors.New("lightgbm: booster is closed")
	}
	return newBorrowedPredictor(b.eng, b.handle)
}

// IntoPredictor converts the Booster into an owned Predictor, transferring
// handle ownership. The Booster is closed and must not be used afterwards.
func (b *Booster) IntoPredictor() (*Predictor, error) {
	if b.closed {
		return nil, lgberrors.New("lightgbm: booster is closed")
	}
	p, err := newBorrowedPredictor(b.eng, b.handle)
	if err != nil {
		return nil, err
	}
	p.owned = true
	b.closed = true
	b.handle = 0
	return p, nil
}

// Attr returns a model attribute.
func (b *Booster) Attr(key string) (string, bool) {
	v, ok := b.attr[key]
	return v, ok
}

// SetAttr sets a model attribute.
func (b *Booster) SetAttr(key, value string) { b.attr[key] = value }

// DelAttr removes a model attribute.
func (b *Booster) DelAttr(key string) { delete(b.attr, key) }

// BestIteration returns the early-stopping best iteration, or 0 when early
// stopping never fired.
func (b *Booster) BestIteration() int { return b.bestIteration }

// SetBestIteration records the early-stopping best iteration as both state
// and the "best_iteration" attribute.
func (b *Booster) SetBestIteration(iteration int) {
	b.bestIteration = iteration
	b.attr["best_iteration"] = strconv.Itoa(iteration)
}

// SaveModel writes the model to path. numIteration <= 0 falls back to the
// best iteration when early stopping recorded one, otherwise the full
// model is saved.
func (b *Booster) SaveModel(path string, numIteration int) error {
	if b.closed {
		return lgberrors.New("lightgbm: booster is closed")
	}
	if numIteration <= 0 {
		numIteration = b.bestIteration
	}
	if err := b.eng.BoosterSaveModel(b.handle, path, numIteration); err != nil {
		return err
	}
	b.log.Info("model saved", log.PathKey, path)
	return nil
}

// DumpModel returns the model as a JSON document.
func (b *Booster) DumpModel() (string, error) {
	if b.closed {
		return "", lgberrors.New("lightgbm: booster is closed")
	}
	return b.eng.BoosterDumpModel(b.handle)
}

// Importance types accepted by FeatureImportance.
const (
	ImportanceSplit = "split"
	ImportanceGain  = "gain"
)

// FeatureImportance computes per-feature importance from the model dump:
// "split" counts how often a feature is split on, "gain" sums the gain of
// those splits.
func (b *Booster) FeatureImportance(importanceType string) ([]float64, error) {
	if importanceType != ImportanceSplit && importanceType != ImportanceGain {
		return nil, lgberrors.NewConfigError("importance_type", `must be "split" or "gain"`, importanceType)
	}
	dump, err := b.DumpModel()
	if err != nil {
		return nil, err
	}
	var model struct {
		MaxFeatureIdx int `json:"max_feature_idx"`
		TreeInfo      []struct {
			TreeStructure map[string]interface{} `json:"tree_structure"`
		} `json:"tree_info"`
	}
	if err := json.Unmarshal([]byte(dump), &model); err != nil {
		return nil, lgberrors.Wrap(err, "parsing model dump")
	}
	importance := make([]float64, model.MaxFeatureIdx+1)
	for _, tree := range model.TreeInfo {
		walkSplits(tree.TreeStructure, func(feature int, gain float64) {
			if feature < 0 || feature >= len(importance) {
				return
			}
			if importanceType == ImportanceGain {
				importance[feature] += gain
			} else {
				importance[feature]++
			}
		})
	}
	return importance, nil
}

// walkSplits visits every internal node of a dumped tree structure.
func walkSplits(node map[string]interface{}, visit func(feature int, gain float64)) {
	if node == nil {
		return
	}
	if f, ok := node["split_feature"].(float64); ok {
		gain, _ := node["split_gain"].(float64)
		visit(int(f), gain)
	}
	for _, key := range []string{"left_child", "right_child"} {
		if child, ok := node[key].(map[string]interface{}); ok {
			walkSplits(child, visit)
		}
	}
}

// Merge folds the trees of other into this Booster, leaving other
// untouched.
func (b *Booster) Merge(other *Booster) error {
	if b.closed || other.closed {
		return lgberrors.New("lightgbm: booster is closed")
	}
	if err := b.eng.BoosterMerge(b.handle, other.handle); err != nil {
		return err
	}
	b.invalidatePredictions()
	return nil
}

// NumValidSets returns the number of registered validation sets.
func (b *Booster) NumValidSets() int { return len(b.validSets) }

// Close releases the engine handle exactly once.
func (b *Booster) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.handle != 0 {
		err := b.eng.BoosterFree(b.handle)
		b.handle = 0
		return err
	}
	return nil
}
