// Package engine defines the call contract between the Go control layer and
// the external gradient-boosting engine.
//
// The engine is treated as a black box reachable through a narrow,
// handle-based interface: datasets and boosters live behind opaque handles,
// every call returns a status, and a failing call exposes a last-error
// string. API mirrors that contract one call per method; implementations are
// the cgo binding in engine/capi and the in-memory test engine in
// engine/enginetest.
package engine

import "fmt"

// DType identifies the element kind of a Buffer. The values match the
// engine's wire-level dtype codes and must not be reordered.
type DType int32

const (
	Float32 DType = iota
	Float64
	Int32
	Int64
)

// String returns the Go-style name of the element kind.
func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DType(%d)", int32(d))
	}
}

// PredictType selects what a prediction call produces.
type PredictType int32

const (
	// PredictNormal produces transformed predictions (e.g. probabilities).
	PredictNormal PredictType = iota
	// PredictRawScore produces the pre-transform additive output.
	PredictRawScore
	// PredictLeafIndex produces the index of the leaf each row falls into,
	// one value per tree.
	PredictLeafIndex
)

// DatasetHandle is an opaque reference to an engine-side dataset.
// The zero value means "no dataset".
type DatasetHandle uintptr

// BoosterHandle is an opaque reference to an engine-side booster.
// The zero value means "no booster".
type BoosterHandle uintptr

// Dataset field names understood by the engine. Each field carries a fixed
// element kind; see FieldKind.
const (
	FieldLabel     = "label"
	FieldWeight    = "weight"
	FieldInitScore = "init_score"
	FieldGroup     = "group"
)

// FieldKind returns the element kind the engine requires for a dataset
// field, and whether the field name is known at all.
func FieldKind(field string) (DType, bool) {
	switch field {
	case FieldLabel, FieldWeight, FieldInitScore:
		return Float32, true
	case FieldGroup:
		return Int32, true
	default:
		return 0, false
	}
}

// API is the complete conceptual call contract of the external engine.
//
// Handles returned by Create* calls are owned by the caller and must be
// released with the matching Free call exactly once. Methods never retry:
// a failed engine call is assumed non-recoverable mid-operation.
type API interface {
	// LastError returns the engine's last error message. Implementations
	// already fold it into returned errors; it is exposed for diagnostics.
	LastError() string

	// DatasetCreateFromFile parses an on-disk text file. ref, when nonzero,
	// is a dataset whose binning boundaries the new dataset inherits.
	DatasetCreateFromFile(path, params string, ref DatasetHandle) (DatasetHandle, error)
	// DatasetCreateFromMat builds a dataset from a contiguous dense matrix.
	DatasetCreateFromMat(data Buffer, rows, cols int, rowMajor bool, params string, ref DatasetHandle) (DatasetHandle, error)
	// DatasetCreateFromCSR builds a dataset from a row-compressed triple.
	DatasetCreateFromCSR(rowPtr Buffer, colIdx []int32, values Buffer, numCols int, params string, ref DatasetHandle) (DatasetHandle, error)
	// DatasetCreateFromCSC builds a dataset from a column-compressed triple.
	DatasetCreateFromCSC(colPtr Buffer, rowIdx []int32, values Buffer, numRows int, params string, ref DatasetHandle) (DatasetHandle, error)
	// DatasetGetSubset narrows an existing dataset to the given row indices,
	// keeping its binning.
	DatasetGetSubset(h DatasetHandle, indices []int32, params string) (DatasetHandle, error)
	// DatasetSetField installs an auxiliary column. A nil Buffer clears the
	// field on the engine side.
	DatasetSetField(h DatasetHandle, field string, data Buffer) error
	// DatasetGetField reads an auxiliary column. A zero-length Buffer means
	// the field is unset.
	DatasetGetField(h DatasetHandle, field string) (Buffer, error)
	DatasetSetFeatureNames(h DatasetHandle, names []string) error
	DatasetNumRows(h DatasetHandle) (int, error)
	DatasetNumFeatures(h DatasetHandle) (int, error)
	DatasetSaveBinary(h DatasetHandle, path string) error
	DatasetFree(h DatasetHandle) error

	BoosterCreate(train DatasetHandle, params string) (BoosterHandle, error)
	// BoosterCreateFromFile loads a serialized model and reports its total
	// iteration count.
	BoosterCreateFromFile(path string) (BoosterHandle, int, error)
	BoosterFree(h BoosterHandle) error
	// BoosterMerge folds the trees of src into dst, used for continued
	// training. src is left untouched.
	BoosterMerge(dst, src BoosterHandle) error
	BoosterAddValidData(h BoosterHandle, data DatasetHandle) error
	BoosterResetTrainingData(h BoosterHandle, data DatasetHandle) error
	BoosterResetParameter(h BoosterHandle, params string) error
	// BoosterUpdateOneIter advances training by one iteration and reports
	// whether the engine declares training finished.
	BoosterUpdateOneIter(h BoosterHandle) (finished bool, err error)
	// BoosterUpdateOneIterCustom is the custom-gradient step; grad and hess
	// are laid out class-major for multi-class models.
	BoosterUpdateOneIterCustom(h BoosterHandle, grad, hess []float32) (finished bool, err error)
	BoosterRollbackOneIter(h BoosterHandle) error
	BoosterCurrentIteration(h BoosterHandle) (int, error)
	BoosterNumClasses(h BoosterHandle) (int, error)

	BoosterEvalCounts(h BoosterHandle) (int, error)
	BoosterEvalNames(h BoosterHandle) ([]string, error)
	// BoosterGetEval returns one value per built-in metric for the dataset
	// at dataIdx (0 = training set, 1.. = validation sets).
	BoosterGetEval(h BoosterHandle, dataIdx int) ([]float64, error)
	// BoosterGetPredict fills out with current-iteration predictions for the
	// dataset at dataIdx and returns the number of values written.
	BoosterGetPredict(h BoosterHandle, dataIdx int, out []float64) (int, error)

	// BoosterCalcNumPredict reports the flat result length of a prediction
	// call over rows input rows.
	BoosterCalcNumPredict(h BoosterHandle, rows int, predictType PredictType, numIteration int) (int, error)
	// BoosterPredictForFile scores an on-disk text file and writes
	// tab-separated results to resultPath.
	BoosterPredictForFile(h BoosterHandle, dataPath string, hasHeader bool, predictType PredictType, numIteration int, resultPath string) error
	// BoosterPredictForMat scores a dense matrix into out, returning the
	// number of values written, which must equal len(out).
	BoosterPredictForMat(h BoosterHandle, data Buffer, rows, cols int, rowMajor bool, predictType PredictType, numIteration int, out []float64) (int, error)
	BoosterPredictForCSR(h BoosterHandle, rowPtr Buffer, colIdx []int32, values Buffer, numCols int, predictType PredictType, numIteration int, out []float64) (int, error)
	BoosterPredictForCSC(h BoosterHandle, colPtr Buffer, rowIdx []int32, values Buffer, numRows int, predictType PredictType, numIteration int, out []float64) (int, error)

	// BoosterSaveModel writes the model to path. numIteration < 0 saves all
	// iterations, otherwise the model is truncated.
	BoosterSaveModel(h BoosterHandle, path string, numIteration int) error
	// BoosterDumpModel returns the model as a JSON document. Implementations
	// handle the engine's grow-and-retry buffer protocol internally.
	BoosterDumpModel(h BoosterHandle) (string, error)
}
