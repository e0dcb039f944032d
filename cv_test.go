package lightgbm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKFoldSplit(t *testing.T) {
	kf := NewKFold(3, false, 0)
	folds := kf.Split(10, nil)
	require.Len(t, folds, 3)

	sizes := []int{len(folds[0].TestIndices), len(folds[1].TestIndices), len(folds[2].TestIndices)}
	assert.Equal(t, []int{4, 3, 3}, sizes)

	seen := make(map[int]int)
	for _, fold := range folds {
		assert.Len(t, fold.TrainIndices, 10-len(fold.TestIndices))
		for _, idx := range fold.TestIndices {
			seen[idx]++
		}
		inTrain := make(map[int]bool)
		for _, idx := range fold.TrainIndices {
			inTrain[idx] = true
		}
		for _, idx := range fold.TestIndices {
			assert.False(t, inTrain[idx], "train and test must be disjoint")
		}
	}
	require.Len(t, seen, 10, "every row appears in exactly one test fold")
	for idx, count := range seen {
		assert.Equal(t, 1, count, "row %d", idx)
	}
}

func TestKFoldShuffleDeterministic(t *testing.T) {
	a := NewKFold(3, true, 42).Split(12, nil)
	b := NewKFold(3, true, 42).Split(12, nil)
	assert.Equal(t, a, b, "the same seed must give the same folds")

	c := NewKFold(3, true, 7).Split(12, nil)
	assert.NotEqual(t, a, c)
}

func TestStratifiedKFoldBalance(t *testing.T) {
	labels := make([]float32, 12)
	for i := 6; i < 12; i++ {
		labels[i] = 1
	}
	skf := NewStratifiedKFold(2, false, 0)
	folds := skf.Split(12, labels)
	require.Len(t, folds, 2)

	for _, fold := range folds {
		var zeros, ones int
		for _, idx := range fold.TestIndices {
			if labels[idx] == 0 {
				zeros++
			} else {
				ones++
			}
		}
		assert.Equal(t, 3, zeros)
		assert.Equal(t, 3, ones)
	}
}

func TestCVHistory(t *testing.T) {
	installTestEngine(t)
	ds := NewDataset(testData(12, 3), testLabels(12))
	defer ds.Close()

	result, err := CV(Params{"metric": "l2"}, ds, NewKFold(3, false, 0),
		WithNumIterations(4))
	require.NoError(t, err)
	defer result.Folds.Close()

	require.Len(t, result.Folds.Boosters, 3)
	assert.Len(t, result.History["l2-mean"], 4)
	assert.Len(t, result.History["l2-stdv"], 4)
	for _, b := range result.Folds.Boosters {
		iter, err := b.CurrentIteration()
		require.NoError(t, err)
		assert.Equal(t, 4, iter, "folds advance in lockstep")
	}
}

func TestCVEarlyStopping(t *testing.T) {
	e := installTestEngine(t)
	// Identical across folds: stdv 0, improvement stops after three
	// iterations.
	e.EvalValue = func(metric string, dataIdx, iteration int) float64 {
		if iteration < 3 {
			return 1.0 - 0.1*float64(iteration)
		}
		return 0.7
	}

	ds := NewDataset(testData(12, 3), testLabels(12))
	defer ds.Close()

	result, err := CV(Params{"metric": "l2"}, ds, NewKFold(3, false, 0),
		WithNumIterations(20),
		WithEarlyStopping(1),
	)
	require.NoError(t, err)
	defer result.Folds.Close()

	assert.Equal(t, 3, result.Folds.BestIteration)
	assert.Len(t, result.History["l2-mean"], 3, "history is trimmed to the best iteration")
	assert.InDelta(t, 0.0, result.History["l2-stdv"][2], 1e-12)
	for _, b := range result.Folds.Boosters {
		assert.Equal(t, 3, b.BestIteration())
	}
}

func TestCVInitModel(t *testing.T) {
	installTestEngine(t)
	modelPath := trainedModelFile(t, Params{"metric": "l2"}, 5)

	var iterations []int
	capture := CallbackFunc(func(env *CallbackEnv) error {
		iterations = append(iterations, env.Iteration)
		return nil
	})

	ds := NewDataset(testData(12, 3), testLabels(12))
	defer ds.Close()

	result, err := CV(Params{"metric": "l2"}, ds, NewKFold(3, false, 0),
		WithNumIterations(2),
		WithInitModel(modelPath),
		WithCallbacks(capture),
	)
	require.NoError(t, err)
	defer result.Folds.Close()

	// Iteration numbering continues after the loaded model, and every
	// fold booster starts from its trees.
	assert.Equal(t, []int{5, 6}, iterations)
	for _, b := range result.Folds.Boosters {
		iter, err := b.CurrentIteration()
		require.NoError(t, err)
		assert.Equal(t, 7, iter)
	}
	assert.Len(t, result.History["l2-mean"], 2)

	init, err := ds.GetInitScore()
	require.NoError(t, err)
	assert.NotEmpty(t, init, "the loaded model's scores seed the init score")

	foldInit, err := result.Folds.Boosters[0].TrainSet().GetInitScore()
	require.NoError(t, err)
	assert.Len(t, foldInit, 8, "fold subsets inherit a sliced init score")
}

func TestCVDefaultSplitter(t *testing.T) {
	installTestEngine(t)
	ds := NewDataset(testData(15, 3), testLabels(15))
	defer ds.Close()

	result, err := CV(Params{"metric": "l2"}, ds, nil, WithNumIterations(2))
	require.NoError(t, err)
	defer result.Folds.Close()
	assert.Len(t, result.Folds.Boosters, 5)
}
