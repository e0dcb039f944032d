package lightgbm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPredictIterationClamping(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 5)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()
	require.Equal(t, 5, pred.NumTotalIterations())

	data := testData(4, 3)
	full, err := pred.Predict(data, nil)
	require.NoError(t, err)

	// Requests above the model size clamp to the full model; zero and
	// negative mean the full model too.
	for _, n := range []int{100, 5, 0, -1} {
		got, err := pred.Predict(data, &PredictOptions{NumIteration: n})
		require.NoError(t, err)
		assert.True(t, mat.Equal(full, got), "NumIteration=%d should equal the full model", n)
	}

	// An in-range limit actually truncates.
	partial, err := pred.Predict(data, &PredictOptions{NumIteration: 2})
	require.NoError(t, err)
	assert.False(t, mat.Equal(full, partial))
}

func TestPredictMultiClassShape(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"num_class": 3, "metric": "l2"}, 2)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()

	out, err := pred.Predict(testData(5, 3), nil)
	require.NoError(t, err)
	rows, cols := out.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 3, cols)
}

func TestPredictLeafIndices(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 3)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()

	leaves, err := pred.PredictLeaf(testData(4, 3), nil)
	require.NoError(t, err)
	require.Len(t, leaves, 4)
	for _, row := range leaves {
		assert.Len(t, row, 3, "one leaf index per tree")
	}
}

func TestPredictFromFileCleansUp(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 2)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()

	dataPath := writeDataFile(t, "0\t1.0\t2.0\t3.0\n1\t4.0\t5.0\t6.0\n")
	out, err := pred.Predict(FilePath(dataPath), nil)
	require.NoError(t, err)
	rows, cols := out.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, cols)

	leftovers, err := filepath.Glob(filepath.Join(os.TempDir(), "lightgbm_predict_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary result files must be removed")
}

func TestPredictFileMatchesMatPredict(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 2)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()

	dataPath := writeDataFile(t, "0\t1.0\t2.0\t3.0\n1\t4.0\t5.0\t6.0\n")
	fromFile, err := pred.Predict(FilePath(dataPath), nil)
	require.NoError(t, err)

	m := testData(2, 3)
	m.Set(0, 0, 1)
	m.Set(0, 1, 2)
	m.Set(0, 2, 3)
	m.Set(1, 0, 4)
	m.Set(1, 1, 5)
	m.Set(1, 2, 6)
	fromMat, err := pred.Predict(m, nil)
	require.NoError(t, err)

	assert.True(t, mat.Equal(fromFile, fromMat),
		"file and in-memory prediction must agree on identical data")
}

func TestPredictorClosed(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 1)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	require.NoError(t, pred.Close())
	require.NoError(t, pred.Close())

	_, err = pred.Predict(testData(2, 3), nil)
	require.Error(t, err)
}
