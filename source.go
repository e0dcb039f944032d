package lightgbm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

// SparseRow is a row-compressed (CSR) matrix. RowPtr has one entry per row
// plus one; row i occupies Values[RowPtr[i]:RowPtr[i+1]] with column indices
// ColIdx at the same positions.
type SparseRow struct {
	RowPtr  []int64
	ColIdx  []int32
	Values  []float64
	NumCols int
}

// Rows returns the number of rows.
func (s *SparseRow) Rows() int { return len(s.RowPtr) - 1 }

func (s *SparseRow) validate() error {
	if len(s.ColIdx) != len(s.Values) {
		return lgberrors.NewShapeError("sparse row", len(s.ColIdx), len(s.Values),
			"column index and value lengths differ")
	}
	if len(s.RowPtr) < 1 {
		return lgberrors.NewShapeError("sparse row", 1, 0, "empty row pointer array")
	}
	return nil
}

// SparseColumn is a column-compressed (CSC) matrix, the transpose layout of
// SparseRow.
type SparseColumn struct {
	ColPtr  []int64
	RowIdx  []int32
	Values  []float64
	NumRows int
}

// Rows returns the number of rows.
func (s *SparseColumn) Rows() int { return s.NumRows }

func (s *SparseColumn) validate() error {
	if len(s.RowIdx) != len(s.Values) {
		return lgberrors.NewShapeError("sparse column", len(s.RowIdx), len(s.Values),
			"row index and value lengths differ")
	}
	if len(s.ColPtr) < 1 {
		return lgberrors.NewShapeError("sparse column", 1, 0, "empty column pointer array")
	}
	return nil
}

// FilePath marks a string as an on-disk text data file. Plain strings given
// as data sources are treated as file paths as well.
type FilePath string

// RowCompressor is the single fallback arm for otherwise unsupported data
// sources: a value that can convert itself to row-compressed form gets one
// coercion attempt before construction fails.
type RowCompressor interface {
	CompressRows() (*SparseRow, error)
}

// dataSource is the closed variant of supported data-source kinds.
type dataSource interface {
	kind() string
}

type denseSource struct{ m mat.Matrix }
type sparseRowSource struct{ s *SparseRow }
type sparseColSource struct{ s *SparseColumn }
type fileSource struct{ path string }

func (denseSource) kind() string     { return "dense matrix" }
func (sparseRowSource) kind() string { return "sparse rows" }
func (sparseColSource) kind() string { return "sparse columns" }
func (fileSource) kind() string      { return "file" }

// resolveSource classifies an arbitrary host value into one of the four
// supported source kinds, with one coercion attempt for RowCompressor
// values. Unsupported types are a TypeKindError.
func resolveSource(data interface{}) (dataSource, error) {
	switch v := data.(type) {
	case nil:
		return nil, lgberrors.NewTypeKindError("data source", "matrix, sparse data or file path", "nil")
	case FilePath:
		return fileSource{path: string(v)}, nil
	case string:
		return fileSource{path: v}, nil
	case *SparseRow:
		if err := v.validate(); err != nil {
			return nil, err
		}
		return sparseRowSource{s: v}, nil
	case *SparseColumn:
		if err := v.validate(); err != nil {
			return nil, err
		}
		return sparseColSource{s: v}, nil
	case mat.Matrix:
		return denseSource{m: v}, nil
	case *Dataset:
		return nil, lgberrors.NewTypeKindError("data source",
			"the raw matrix, sparse data or file path a Dataset is built from", "*Dataset")
	case RowCompressor:
		csr, err := v.CompressRows()
		if err != nil {
			return nil, lgberrors.NewTypeKindError("data source", "row-compressible value",
				fmt.Sprintf("%T (coercion failed: %v)", data, err))
		}
		if err := csr.validate(); err != nil {
			return nil, err
		}
		return sparseRowSource{s: csr}, nil
	default:
		return nil, lgberrors.NewTypeKindError("data source", "matrix, sparse data or file path",
			fmt.Sprintf("%T", data))
	}
}
