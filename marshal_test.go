package lightgbm

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

func TestToBufferPassThrough(t *testing.T) {
	in := []float32{1, 2, 3}
	buf, err := toBuffer("label", in, engine.Float32)
	if err != nil {
		t.Fatalf("toBuffer: %v", err)
	}
	got := buf.Float32s()
	if &got[0] != &in[0] {
		t.Error("exact-kind slice should pass through without copying")
	}
}

func TestToBufferConverts(t *testing.T) {
	buf, err := toBuffer("label", []int{4, 5}, engine.Float32)
	if err != nil {
		t.Fatalf("toBuffer: %v", err)
	}
	got := buf.Float32s()
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("converted buffer = %v, want [4 5]", got)
	}
}

func TestToBufferVecDense(t *testing.T) {
	vec := mat.NewVecDense(3, []float64{1, 2, 3})
	buf, err := toBuffer("weight", vec, engine.Float32)
	if err != nil {
		t.Fatalf("toBuffer: %v", err)
	}
	if buf.Len() != 3 || buf.Float32s()[2] != 3 {
		t.Errorf("vector buffer = %v", buf.Float32s())
	}
}

func TestToBufferRejectsMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	_, err := toBuffer("label", m, engine.Float32)
	var shapeErr *lgberrors.ShapeError
	if !lgberrors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeError for 2-D input, got %v", err)
	}
}

func TestToBufferRejectsNonNumeric(t *testing.T) {
	_, err := toBuffer("label", []string{"a"}, engine.Float32)
	var kindErr *lgberrors.TypeKindError
	if !lgberrors.As(err, &kindErr) {
		t.Fatalf("expected TypeKindError, got %v", err)
	}
}

func TestToInt64sRejectsFloats(t *testing.T) {
	if _, err := toInt64s("row pointers", []float64{1, 2}); err == nil {
		t.Error("expected error converting float slice to int64")
	}
}

func TestFlattenMatrixNoCopy(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	m := mat.NewDense(2, 3, data)
	buf, rows, cols := flattenMatrix(m)
	if rows != 2 || cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", rows, cols)
	}
	flat := buf.Float64s()
	if &flat[0] != &data[0] {
		t.Error("contiguous Dense should flatten without copying")
	}
}

func TestFlattenMatrixCopiesViews(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	view := m.Slice(0, 2, 0, 2)
	buf, rows, cols := flattenMatrix(view)
	if rows != 2 || cols != 2 {
		t.Fatalf("dims = %dx%d, want 2x2", rows, cols)
	}
	want := []float64{1, 2, 4, 5}
	for i, v := range buf.Float64s() {
		if v != want[i] {
			t.Errorf("flat[%d] = %v, want %v", i, v, want[i])
		}
	}
}
