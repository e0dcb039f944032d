package engine

// Buffer is a contiguous typed buffer crossing the engine boundary. It is a
// closed union over the four element kinds the engine understands; exactly
// one backing slice is set. The zero Buffer is the nil buffer, used to clear
// dataset fields.
type Buffer struct {
	dtype DType
	f32   []float32
	f64   []float64
	i32   []int32
	i64   []int64
	set   bool
}

// F32 wraps a float32 slice without copying.
func F32(v []float32) Buffer { return Buffer{dtype: Float32, f32: v, set: true} }

// F64 wraps a float64 slice without copying.
func F64(v []float64) Buffer { return Buffer{dtype: Float64, f64: v, set: true} }

// I32 wraps an int32 slice without copying.
func I32(v []int32) Buffer { return Buffer{dtype: Int32, i32: v, set: true} }

// I64 wraps an int64 slice without copying.
func I64(v []int64) Buffer { return Buffer{dtype: Int64, i64: v, set: true} }

// IsNil reports whether b is the nil buffer.
func (b Buffer) IsNil() bool { return !b.set }

// DType returns the element kind of the buffer.
func (b Buffer) DType() DType { return b.dtype }

// Len returns the number of elements.
func (b Buffer) Len() int {
	switch b.dtype {
	case Float32:
		return len(b.f32)
	case Float64:
		return len(b.f64)
	case Int32:
		return len(b.i32)
	case Int64:
		return len(b.i64)
	}
	return 0
}

// Float32s returns the backing slice when the kind is Float32, else nil.
func (b Buffer) Float32s() []float32 { return b.f32 }

// Float64s returns the backing slice when the kind is Float64, else nil.
func (b Buffer) Float64s() []float64 { return b.f64 }

// Int32s returns the backing slice when the kind is Int32, else nil.
func (b Buffer) Int32s() []int32 { return b.i32 }

// Int64s returns the backing slice when the kind is Int64, else nil.
func (b Buffer) Int64s() []int64 { return b.i64 }

// AsFloat64s returns the elements widened to float64, copying always.
func (b Buffer) AsFloat64s() []float64 {
	out := make([]float64, b.Len())
	switch b.dtype {
	case Float32:
		for i, v := range b.f32 {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, b.f64)
	case Int32:
		for i, v := range b.i32 {
			out[i] = float64(v)
		}
	case Int64:
		for i, v := range b.i64 {
			out[i] = float64(v)
		}
	}
	return out
}

// AsInt32s returns the elements truncated to int32, copying always.
func (b Buffer) AsInt32s() []int32 {
	out := make([]int32, b.Len())
	switch b.dtype {
	case Float32:
		for i, v := range b.f32 {
			out[i] = int32(v)
		}
	case Float64:
		for i, v := range b.f64 {
			out[i] = int32(v)
		}
	case Int32:
		copy(out, b.i32)
	case Int64:
		for i, v := range b.i64 {
			out[i] = int32(v)
		}
	}
	return out
}
