package lightgbm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

// toBuffer converts a host 1-D numeric value into a contiguous buffer of the
// requested element kind. A slice that already has the exact kind passes
// through without copying; other numeric slices are copy-converted. Anything
// that is not a 1-D numeric value is a TypeKindError naming the received
// type; matrices are a ShapeError since this path is strictly 1-D.
func toBuffer(name string, v interface{}, kind engine.DType) (engine.Buffer, error) {
	if v == nil {
		return engine.Buffer{}, nil
	}
	if vec, ok := v.(*mat.VecDense); ok {
		v = vec.RawVector().Data
	}
	if m, ok := v.(mat.Matrix); ok {
		r, c := m.Dims()
		return engine.Buffer{}, lgberrors.NewShapeError(
			"marshal "+name, 1, 2, fmt.Sprintf("expected 1-D data, got %dx%d matrix", r, c))
	}

	switch kind {
	case engine.Float32:
		out, err := toFloat32s(name, v)
		if err != nil {
			return engine.Buffer{}, err
		}
		return engine.F32(out), nil
	case engine.Float64:
		out, err := toFloat64s(name, v)
		if err != nil {
			return engine.Buffer{}, err
		}
		return engine.F64(out), nil
	case engine.Int32:
		out, err := toInt32s(name, v)
		if err != nil {
			return engine.Buffer{}, err
		}
		return engine.I32(out), nil
	case engine.Int64:
		out, err := toInt64s(name, v)
		if err != nil {
			return engine.Buffer{}, err
		}
		return engine.I64(out), nil
	default:
		return engine.Buffer{}, lgberrors.NewTypeKindError("marshal "+name, "", kind.String())
	}
}

// floatBuffer marshals v to a floating-point buffer, keeping float32 and
// float64 slices at their native width and upcasting integer slices to
// float64 so no representable value is lost.
func floatBuffer(name string, v interface{}) (engine.Buffer, error) {
	switch v.(type) {
	case []float32:
		return toBuffer(name, v, engine.Float32)
	default:
		return toBuffer(name, v, engine.Float64)
	}
}

// intBuffer marshals v to an integer buffer, keeping int32 and int64 slices
// at their native width.
func intBuffer(name string, v interface{}) (engine.Buffer, error) {
	switch v.(type) {
	case []int64:
		return toBuffer(name, v, engine.Int64)
	default:
		return toBuffer(name, v, engine.Int32)
	}
}

func toFloat32s(name string, v interface{}) ([]float32, error) {
	switch val := v.(type) {
	case []float32:
		return val, nil
	case []float64:
		out := make([]float32, len(val))
		for i, x := range val {
			out[i] = float32(x)
		}
		return out, nil
	case []int:
		out := make([]float32, len(val))
		for i, x := range val {
			out[i] = float32(x)
		}
		return out, nil
	case []int32:
		out := make([]float32, len(val))
		for i, x := range val {
			out[i] = float32(x)
		}
		return out, nil
	case []int64:
		out := make([]float32, len(val))
		for i, x := range val {
			out[i] = float32(x)
		}
		return out, nil
	default:
		return nil, lgberrors.NewTypeKindError("marshal "+name, "numeric slice", fmt.Sprintf("%T", v))
	}
}

func toFloat64s(name string, v interface{}) ([]float64, error) {
	switch val := v.(type) {
	case []float64:
		return val, nil
	case []float32:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, nil
	case []int:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, lgberrors.NewTypeKindError("marshal "+name, "numeric slice", fmt.Sprintf("%T", v))
	}
}

func toInt32s(name string, v interface{}) ([]int32, error) {
	switch val := v.(type) {
	case []int32:
		return val, nil
	case []int:
		out := make([]int32, len(val))
		for i, x := range val {
			out[i] = int32(x)
		}
		return out, nil
	case []int64:
		out := make([]int32, len(val))
		for i, x := range val {
			out[i] = int32(x)
		}
		return out, nil
	case []float64:
		out := make([]int32, len(val))
		for i, x := range val {
			out[i] = int32(x)
		}
		return out, nil
	case []float32:
		out := make([]int32, len(val))
		for i, x := range val {
			out[i] = int32(x)
		}
		return out, nil
	default:
		return nil, lgberrors.NewTypeKindError("marshal "+name, "integer slice", fmt.Sprintf("%T", v))
	}
}

func toInt64s(name string, v interface{}) ([]int64, error) {
	switch val := v.(type) {
	case []int64:
		return val, nil
	case []int:
		out := make([]int64, len(val))
		for i, x := range val {
			out[i] = int64(x)
		}
		return out, nil
	case []int32:
		out := make([]int64, len(val))
		for i, x := range val {
			out[i] = int64(x)
		}
		return out, nil
	default:
		return nil, lgberrors.NewTypeKindError("marshal "+name, "integer slice", fmt.Sprintf("%T", v))
	}
}

// flattenMatrix lays a 2-D matrix out row-major as a float64 buffer. A
// *mat.Dense whose stride equals its column count is passed through without
// copying; everything else is copied element by element.
func flattenMatrix(m mat.Matrix) (engine.Buffer, int, int) {
	rows, cols := m.Dims()
	if d, ok := m.(*mat.Dense); ok {
		raw := d.RawMatrix()
		if raw.Stride == cols {
			return engine.F64(raw.Data), rows, cols
		}
	}
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = m.At(i, j)
		}
	}
	return engine.F64(flat), rows, cols
}
