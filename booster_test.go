package lightgbm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

func newTestBooster(t *testing.T, params Params) (*Booster, *Dataset) {
	t.Helper()
	ds := NewDataset(testData(10, 3), testLabels(10))
	b, err := NewBooster(params, ds)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Close()
		_ = ds.Close()
	})
	return b, ds
}

func TestBoosterUpdateAndIteration(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})

	for i := 1; i <= 3; i++ {
		_, err := b.Update()
		require.NoError(t, err)
		iter, err := b.CurrentIteration()
		require.NoError(t, err)
		assert.Equal(t, i, iter)
	}
}

func TestPredictionCacheReuse(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	_, err := b.Update()
	require.NoError(t, err)

	first, err := b.innerPredict(0)
	require.NoError(t, err)

	// A second call within the same iteration must not re-ask the engine:
	// a marker written into the buffer survives.
	first[0] = 424242
	again, err := b.innerPredict(0)
	require.NoError(t, err)
	assert.Equal(t, 424242.0, again[0])

	// The next iteration invalidates the cache and the engine refills it.
	_, err = b.Update()
	require.NoError(t, err)
	refreshed, err := b.innerPredict(0)
	require.NoError(t, err)
	assert.NotEqual(t, 424242.0, refreshed[0])
}

func TestRollbackInvalidatesCache(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	_, err := b.Update()
	require.NoError(t, err)
	_, err = b.Update()
	require.NoError(t, err)

	preds, err := b.innerPredict(0)
	require.NoError(t, err)
	atTwo := preds[1]

	require.NoError(t, b.RollbackOneIter())
	iter, err := b.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 1, iter)

	preds, err = b.innerPredict(0)
	require.NoError(t, err)
	assert.NotEqual(t, atTwo, preds[1], "rollback must drop cached predictions")
}

func TestUpdateCustomShapeChecks(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})

	grad := make([]float32, 10)
	hess := make([]float32, 9)
	_, err := b.UpdateCustom(grad, hess)
	var shapeErr *lgberrors.ShapeError
	require.True(t, lgberrors.As(err, &shapeErr))

	_, err = b.UpdateCustom(make([]float32, 7), make([]float32, 7))
	require.True(t, lgberrors.As(err, &shapeErr), "length must cover rows x classes")

	_, err = b.UpdateCustom(make([]float32, 10), make([]float32, 10))
	require.NoError(t, err)
	iter, err := b.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 1, iter)
}

func TestAddValidLineage(t *testing.T) {
	installTestEngine(t)
	b, ds := newTestBooster(t, Params{"metric": "l2"})

	valid := ds.CreateValid(testData(4, 3), testLabels(4))
	defer valid.Close()
	require.NoError(t, b.AddValid(valid, "valid"))
	assert.Equal(t, 1, b.NumValidSets())

	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 1)
	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()

	stranger := NewDataset(testData(4, 3), testLabels(4))
	defer stranger.Close()
	require.NoError(t, stranger.setPredictor(pred))

	err = b.AddValid(stranger, "stranger")
	var lineage *lgberrors.LineageMismatchError
	require.True(t, lgberrors.As(err, &lineage))

	err = b.ResetTrainingData(stranger)
	require.True(t, lgberrors.As(err, &lineage))
}

func TestEvalMetricNamesAndDirection(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2,auc"})
	_, err := b.Update()
	require.NoError(t, err)

	results, err := b.EvalTrain()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "l2", results[0].MetricName)
	assert.False(t, results[0].HigherBetter)
	assert.Equal(t, "auc", results[1].MetricName)
	assert.True(t, results[1].HigherBetter)
	assert.Equal(t, "training", results[0].DatasetName)
}

func TestResetParameterMetricReload(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	_, err := b.Update()
	require.NoError(t, err)

	_, err = b.EvalTrain()
	require.NoError(t, err)
	require.NotNil(t, b.evalNames)

	// Parameter changes without a metric key keep the cached names.
	require.NoError(t, b.ResetParameter(Params{"learning_rate": 0.05}))
	assert.NotNil(t, b.evalNames)

	// A metric change forces a reload on the next evaluation.
	require.NoError(t, b.ResetParameter(Params{"metric": "ndcg"}))
	assert.Nil(t, b.evalNames)

	results, err := b.EvalTrain()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ndcg", results[0].MetricName)
	assert.True(t, results[0].HigherBetter)
}

func TestEvalValidAndCustomMetric(t *testing.T) {
	installTestEngine(t)
	b, ds := newTestBooster(t, Params{"metric": "l2"})
	valid := ds.CreateValid(testData(4, 3), testLabels(4))
	defer valid.Close()
	require.NoError(t, b.AddValid(valid, "holdout"))
	_, err := b.Update()
	require.NoError(t, err)

	feval := func(preds []float64, d *Dataset) (string, float64, bool, error) {
		return "mean_pred", preds[0], false, nil
	}
	results, err := b.EvalValid(feval)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "holdout", results[0].DatasetName)
	assert.Equal(t, "l2", results[0].MetricName)
	assert.Equal(t, "mean_pred", results[1].MetricName)
}

func TestAttrAndBestIteration(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})

	_, ok := b.Attr("best_iteration")
	assert.False(t, ok)

	b.SetBestIteration(7)
	assert.Equal(t, 7, b.BestIteration())
	v, ok := b.Attr("best_iteration")
	require.True(t, ok)
	assert.Equal(t, "7", v)

	b.SetAttr("note", "hello")
	v, ok = b.Attr("note")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
	b.DelAttr("note")
	_, ok = b.Attr("note")
	assert.False(t, ok)
}

func TestSaveModelUsesBestIteration(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	for i := 0; i < 5; i++ {
		_, err := b.Update()
		require.NoError(t, err)
	}
	b.SetBestIteration(3)

	path := t.TempDir() + "/model.txt"
	require.NoError(t, b.SaveModel(path, 0))

	pred, err := NewPredictorFromFile(path)
	require.NoError(t, err)
	defer pred.Close()
	assert.Equal(t, 3, pred.NumTotalIterations())
}

func TestFeatureImportance(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	_, err := b.Update()
	require.NoError(t, err)
	_, err = b.Update()
	require.NoError(t, err)

	// The fake dump grows one tree per iteration with splits on features
	// t%cols and (t+1)%cols: tree 0 splits on 0 and 1, tree 1 on 1 and 2.
	split, err := b.FeatureImportance(ImportanceSplit)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1}, split)

	gain, err := b.FeatureImportance(ImportanceGain)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 1.5, 0.5}, gain)

	_, err = b.FeatureImportance("weight")
	var cfgErr *lgberrors.ConfigError
	require.True(t, lgberrors.As(err, &cfgErr))
}

func TestIntoPredictorTransfersOwnership(t *testing.T) {
	installTestEngine(t)
	ds := NewDataset(testData(10, 3), testLabels(10))
	defer ds.Close()
	b, err := NewBooster(Params{"metric": "l2"}, ds)
	require.NoError(t, err)
	_, err = b.Update()
	require.NoError(t, err)

	pred, err := b.IntoPredictor()
	require.NoError(t, err)
	defer pred.Close()

	_, err = b.Update()
	require.Error(t, err, "booster is closed after the handle transfer")
	require.NoError(t, b.Close())

	out, err := pred.Predict(testData(4, 3), nil)
	require.NoError(t, err)
	rows, _ := out.Dims()
	assert.Equal(t, 4, rows)
}

func TestBorrowedPredictorSnapshot(t *testing.T) {
	installTestEngine(t)
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	_, err := b.Update()
	require.NoError(t, err)

	pred, err := b.Predictor()
	require.NoError(t, err)
	assert.Equal(t, 1, pred.NumTotalIterations())

	_, err = b.Update()
	require.NoError(t, err)
	assert.Equal(t, 1, pred.NumTotalIterations(), "snapshot does not follow later training")

	// Closing the borrowed predictor leaves the booster usable.
	require.NoError(t, pred.Close())
	_, err = b.Update()
	require.NoError(t, err)
}

func TestBoosterMerge(t *testing.T) {
	installTestEngine(t)
	a, _ := newTestBooster(t, Params{"metric": "l2"})
	b, _ := newTestBooster(t, Params{"metric": "l2"})
	for i := 0; i < 2; i++ {
		_, err := a.Update()
		require.NoError(t, err)
		_, err = b.Update()
		require.NoError(t, err)
	}
	require.NoError(t, a.Merge(b))
	iter, err := a.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 4, iter)
}

func TestInferenceModeRejectsTraining(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 2)

	b, err := NewBoosterFromFile(modelPath)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Update()
	require.Error(t, err)
	require.Error(t, b.RollbackOneIter())
	_, err = b.EvalTrain()
	require.Error(t, err)

	// Prediction still works.
	out, err := b.Predict(testData(3, 3), nil)
	require.NoError(t, err)
	rows, _ := out.Dims()
	assert.Equal(t, 3, rows)
}
