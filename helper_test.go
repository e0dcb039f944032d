package lightgbm

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/meggersntexasv8/LightGBM/engine/enginetest"
)

// installTestEngine wires a fresh in-memory engine for the duration of one
// test.
func installTestEngine(t *testing.T) *enginetest.Engine {
	t.Helper()
	e := enginetest.New()
	SetEngine(e)
	t.Cleanup(func() { SetEngine(nil) })
	return e
}

// testData builds a deterministic dense matrix with enough distinct values
// per column to make binning observable.
func testData(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i%7) + 0.25*float64(i)
	}
	return mat.NewDense(rows, cols, data)
}

func testLabels(rows int) []float32 {
	labels := make([]float32, rows)
	for i := range labels {
		labels[i] = float32(i % 2)
	}
	return labels
}

// writeDataFile writes a small tab-separated data file with the label in
// column 0.
func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing data file: %v", err)
	}
	return path
}

// trainedModelFile trains a small booster on the installed engine and
// saves it, returning the model path and iteration count.
func trainedModelFile(t *testing.T, params Params, iterations int) string {
	t.Helper()
	ds := NewDataset(testData(8, 3), testLabels(8))
	b, err := NewBooster(params, ds)
	if err != nil {
		t.Fatalf("NewBooster: %v", err)
	}
	defer b.Close()
	defer ds.Close()
	for i := 0; i < iterations; i++ {
		if _, err := b.Update(); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "model.txt")
	if err := b.SaveModel(path, iterations); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}
	return path
}
