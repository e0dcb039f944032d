package lightgbm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

func TestDatasetConstructAndLabel(t *testing.T) {
	installTestEngine(t)

	labels := testLabels(10)
	ds := NewDataset(testData(10, 3), labels)
	defer ds.Close()
	require.False(t, ds.Constructed())
	require.NoError(t, ds.Construct())
	require.True(t, ds.Constructed())

	rows, err := ds.NumRows()
	require.NoError(t, err)
	assert.Equal(t, 10, rows)
	cols, err := ds.NumFeatures()
	require.NoError(t, err)
	assert.Equal(t, 3, cols)

	// Read the label back through the engine, not the host cache.
	ds.label = nil
	got, err := ds.GetLabel()
	require.NoError(t, err)
	assert.Equal(t, labels, got)
}

func TestDatasetMissingLabel(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(5, 2), nil)
	err := ds.Construct()
	require.Error(t, err)
	var missing *lgberrors.MissingLabelError
	assert.True(t, lgberrors.As(err, &missing))
	assert.False(t, ds.Constructed())
}

func TestDatasetFromFileEmbedsLabel(t *testing.T) {
	installTestEngine(t)

	path := writeDataFile(t, "1\t0.5\t2.0\n0\t1.5\t3.0\n1\t2.5\t4.0\n")
	ds := NewDataset(FilePath(path), nil)
	defer ds.Close()
	require.NoError(t, ds.Construct())

	label, err := ds.GetLabel()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 1}, label)
	cols, err := ds.NumFeatures()
	require.NoError(t, err)
	assert.Equal(t, 2, cols)
}

func TestDatasetLazyConstructionError(t *testing.T) {
	installTestEngine(t)

	// The bad source surfaces only at construction time.
	ds := NewDataset(42, testLabels(3))
	err := ds.Construct()
	var kindErr *lgberrors.TypeKindError
	require.True(t, lgberrors.As(err, &kindErr))
}

func TestSubsetInheritsBinsAndFields(t *testing.T) {
	e := installTestEngine(t)

	parent := NewDataset(testData(10, 3), testLabels(10), WithMaxBin(4))
	defer parent.Close()
	require.NoError(t, parent.Construct())

	sub := parent.Subset([]int{1, 3, 5}, nil)
	defer sub.Close()
	require.NoError(t, sub.Construct())

	rows, err := sub.NumRows()
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	assert.Equal(t, e.Bins(parent.handle), e.Bins(sub.handle),
		"subset must inherit the reference binning")

	label, err := sub.GetLabel()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, label)
}

func TestCreateValidAlignsWithReference(t *testing.T) {
	e := installTestEngine(t)

	train := NewDataset(testData(20, 3), testLabels(20), WithMaxBin(8))
	defer train.Close()
	valid := train.CreateValid(testData(6, 3), testLabels(6))
	defer valid.Close()

	require.NoError(t, valid.Construct())
	assert.Equal(t, e.Bins(train.handle), e.Bins(valid.handle),
		"validation data must be binned like the training data")
	assert.Equal(t, train.maxBin, valid.maxBin)
}

func TestGroupSizesRoundTrip(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(10, 2), testLabels(10), WithGroup([]int32{3, 5, 2}))
	defer ds.Close()
	require.NoError(t, ds.Construct())

	// Host cache path.
	sizes, err := ds.GetGroup()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 2}, sizes)

	// Engine path: boundaries [0 3 8 10] diffed back to sizes.
	ds.group = nil
	sizes, err = ds.GetGroup()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 2}, sizes)
}

func TestInitScoreRelayout(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"num_class": 3, "metric": "l2"}, 2)

	pred, err := NewPredictorFromFile(modelPath)
	require.NoError(t, err)
	defer pred.Close()
	require.Equal(t, 3, pred.NumClasses())

	data := testData(6, 3)
	raw, err := pred.Predict(data, &PredictOptions{RawScore: true})
	require.NoError(t, err)
	rows, classes := raw.Dims()
	require.Equal(t, 6, rows)
	require.Equal(t, 3, classes)

	ds := NewDataset(data, testLabels(6), WithKeepRawData())
	defer ds.Close()
	require.NoError(t, ds.setPredictor(pred))
	require.NoError(t, ds.Construct())

	init, err := ds.GetInitScore()
	require.NoError(t, err)
	require.Len(t, init, rows*classes)
	for r := 0; r < rows; r++ {
		for c := 0; c < classes; c++ {
			assert.Equal(t, float32(raw.At(r, c)), init[c*rows+r],
				"init score must be the class-major transpose of the row-major raw scores")
		}
	}
}

func TestMutationAfterRawDataFreed(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(5, 2), testLabels(5))
	defer ds.Close()
	require.NoError(t, ds.Construct())

	err := ds.SetCategoricalFeatures(1)
	require.Error(t, err, "binning changes need the raw data, which was discarded")

	kept := NewDataset(testData(5, 2), testLabels(5), WithKeepRawData())
	defer kept.Close()
	require.NoError(t, kept.Construct())
	require.NoError(t, kept.SetCategoricalFeatures(1))
	assert.False(t, kept.Constructed(), "binning change drops the handle")
	require.NoError(t, kept.Construct())
}

func TestSetFeatureNames(t *testing.T) {
	e := installTestEngine(t)

	ds := NewDataset(testData(4, 3), testLabels(4), WithFeatureNames("a", "b", "c"))
	defer ds.Close()
	require.NoError(t, ds.Construct())
	assert.Equal(t, []string{"a", "b", "c"}, e.FeatureNames(ds.handle))

	err := ds.SetFeatureNames([]string{"too", "few"})
	var shapeErr *lgberrors.ShapeError
	require.True(t, lgberrors.As(err, &shapeErr))
}

func TestDatasetSparseSources(t *testing.T) {
	installTestEngine(t)

	csr := &SparseRow{
		RowPtr:  []int64{0, 2, 3, 4},
		ColIdx:  []int32{0, 2, 1, 2},
		Values:  []float64{1, 2, 3, 4},
		NumCols: 3,
	}
	ds := NewDataset(csr, []float32{0, 1, 0})
	defer ds.Close()
	require.NoError(t, ds.Construct())
	rows, err := ds.NumRows()
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	csc := &SparseColumn{
		ColPtr:  []int64{0, 1, 2},
		RowIdx:  []int32{0, 1},
		Values:  []float64{5, 6},
		NumRows: 2,
	}
	ds2 := NewDataset(csc, []float32{1, 0})
	defer ds2.Close()
	require.NoError(t, ds2.Construct())
	cols, err := ds2.NumFeatures()
	require.NoError(t, err)
	assert.Equal(t, 2, cols)
}

func TestDatasetCloseIdempotent(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(4, 2), testLabels(4))
	require.NoError(t, ds.Construct())
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
	require.Error(t, ds.Construct())
}

func TestNumRowsRequiresConstruction(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(4, 2), testLabels(4))
	defer ds.Close()
	_, err := ds.NumRows()
	require.Error(t, err)
	_, err = ds.NumFeatures()
	require.Error(t, err)
}

func TestSaveBinary(t *testing.T) {
	installTestEngine(t)

	ds := NewDataset(testData(4, 2), testLabels(4))
	defer ds.Close()
	path := t.TempDir() + "/data.bin"
	require.NoError(t, ds.SaveBinary(path))
	assert.True(t, ds.Constructed(), "SaveBinary constructs implicitly")
	assert.FileExists(t, path)
}
