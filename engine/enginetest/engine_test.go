package enginetest

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/meggersntexasv8/LightGBM/engine"
)

func mustDataset(t *testing.T, e *Engine, rows, cols, maxBin int) engine.DatasetHandle {
	t.Helper()
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i % 11)
	}
	h, err := e.DatasetCreateFromMat(engine.F64(data), rows, cols, true, "max_bin="+strconv.Itoa(maxBin), 0)
	if err != nil {
		t.Fatalf("DatasetCreateFromMat: %v", err)
	}
	label := make([]float32, rows)
	if err := e.DatasetSetField(h, engine.FieldLabel, engine.F32(label)); err != nil {
		t.Fatalf("set label: %v", err)
	}
	return h
}

func TestBinsCappedByMaxBin(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 30, 2, 5)
	for i, bins := range e.Bins(h) {
		if bins != 5 {
			t.Errorf("feature %d binned into %d bins, want 5 (capped)", i, bins)
		}
	}

	small := mustDataset(t, e, 4, 2, 100)
	for i, bins := range e.Bins(small) {
		if bins > 4 {
			t.Errorf("feature %d has %d bins, more than the distinct values", i, bins)
		}
	}
}

func TestReferenceInheritsBins(t *testing.T) {
	e := New()
	ref := mustDataset(t, e, 30, 2, 5)

	data := []float64{1, 2, 3, 4}
	h, err := e.DatasetCreateFromMat(engine.F64(data), 2, 2, true, "max_bin=100", ref)
	if err != nil {
		t.Fatalf("DatasetCreateFromMat: %v", err)
	}
	refBins := e.Bins(ref)
	for i, bins := range e.Bins(h) {
		if bins != refBins[i] {
			t.Errorf("feature %d: bins %d, reference has %d", i, bins, refBins[i])
		}
	}
}

func TestGroupBoundaries(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 10, 2, 255)
	if err := e.DatasetSetField(h, engine.FieldGroup, engine.I32([]int32{3, 5, 2})); err != nil {
		t.Fatalf("set group: %v", err)
	}
	buf, err := e.DatasetGetField(h, engine.FieldGroup)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	want := []int32{0, 3, 8, 10}
	got := buf.Int32s()
	if len(got) != len(want) {
		t.Fatalf("boundaries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("boundaries = %v, want %v", got, want)
		}
	}

	// Sizes not summing to the row count are rejected.
	if err := e.DatasetSetField(h, engine.FieldGroup, engine.I32([]int32{3, 3})); err == nil {
		t.Error("expected error for group sizes not covering all rows")
	}
}

func TestCreateFromFileLabelColumn(t *testing.T) {
	e := New()
	path := filepath.Join(t.TempDir(), "data.tsv")
	content := "1\t0.5\t0.25\n0\t1.5\t2.25\n1\t3\t4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing data file: %v", err)
	}

	h, err := e.DatasetCreateFromFile(path, "max_bin=255", 0)
	if err != nil {
		t.Fatalf("DatasetCreateFromFile: %v", err)
	}
	rows, err := e.DatasetNumRows(h)
	if err != nil {
		t.Fatalf("NumRows: %v", err)
	}
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}
	buf, err := e.DatasetGetField(h, engine.FieldLabel)
	if err != nil {
		t.Fatalf("get label: %v", err)
	}
	want := []float32{1, 0, 1}
	got := buf.Float32s()
	if len(got) != len(want) {
		t.Fatalf("label = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label = %v, want %v", got, want)
		}
	}
}

func TestSubsetSlicesInitScore(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 5, 2, 255)
	if err := e.DatasetSetField(h, engine.FieldInitScore, engine.F32([]float32{10, 11, 12, 13, 14})); err != nil {
		t.Fatalf("set init score: %v", err)
	}

	sub, err := e.DatasetGetSubset(h, []int32{3, 1}, "")
	if err != nil {
		t.Fatalf("GetSubset: %v", err)
	}
	buf, err := e.DatasetGetField(sub, engine.FieldInitScore)
	if err != nil {
		t.Fatalf("get init score: %v", err)
	}
	got := buf.Float32s()
	if len(got) != 2 || got[0] != 13 || got[1] != 11 {
		t.Errorf("init score = %v, want [13 11]", got)
	}

	// Class-major init scores span rows x classes values and cannot be
	// sliced per row; the subset drops them.
	if err := e.DatasetSetField(h, engine.FieldInitScore, engine.F32(make([]float32, 10))); err != nil {
		t.Fatalf("set class-major init score: %v", err)
	}
	sub2, err := e.DatasetGetSubset(h, []int32{0, 1}, "")
	if err != nil {
		t.Fatalf("GetSubset: %v", err)
	}
	buf2, err := e.DatasetGetField(sub2, engine.FieldInitScore)
	if err != nil {
		t.Fatalf("get init score: %v", err)
	}
	if buf2.Len() != 0 {
		t.Errorf("class-major init score survived the subset: %v", buf2.Float32s())
	}
}

func TestDoubleFree(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 4, 2, 255)
	if err := e.DatasetFree(h); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := e.DatasetFree(h); err == nil {
		t.Error("second free must fail")
	}
	if e.LastError() == "" {
		t.Error("LastError must report the failure")
	}
}

func TestGetPredictClassMajor(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 3, 2, 255)
	bh, err := e.BoosterCreate(h, "num_class=2 metric=l2")
	if err != nil {
		t.Fatalf("BoosterCreate: %v", err)
	}
	if _, err := e.BoosterUpdateOneIter(bh); err != nil {
		t.Fatalf("update: %v", err)
	}

	out := make([]float64, 6)
	n, err := e.BoosterGetPredict(bh, 0, out)
	if err != nil {
		t.Fatalf("GetPredict: %v", err)
	}
	if n != 6 {
		t.Fatalf("n = %d, want 6", n)
	}
	// Class-major: the first three values are class 0 for rows 0..2, the
	// next three are class 1, offset by the fixed class shift.
	for r := 0; r < 3; r++ {
		if diff := out[3+r] - out[r]; diff < 0.009 || diff > 0.011 {
			t.Errorf("class offset at row %d = %v, want 0.01", r, diff)
		}
	}
}

func TestPredictForMatRowMajor(t *testing.T) {
	e := New()
	h := mustDataset(t, e, 3, 2, 255)
	bh, err := e.BoosterCreate(h, "num_class=2 metric=l2")
	if err != nil {
		t.Fatalf("BoosterCreate: %v", err)
	}
	if _, err := e.BoosterUpdateOneIter(bh); err != nil {
		t.Fatalf("update: %v", err)
	}

	data := []float64{1, 2, 3, 4}
	out := make([]float64, 4)
	n, err := e.BoosterPredictForMat(bh, engine.F64(data), 2, 2, true, engine.PredictNormal, 0, out)
	if err != nil {
		t.Fatalf("PredictForMat: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
	// Row-major: classes adjacent within a row.
	if diff := out[1] - out[0]; diff < 0.009 || diff > 0.011 {
		t.Errorf("row 0 class offset = %v, want 0.01", diff)
	}
}
