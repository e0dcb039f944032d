//go:build capi

// Package capi implements engine.API over the native LightGBM C library.
// It is built only with the capi tag and needs lib_lightgbm available at
// link time.
package capi

/*
#cgo LDFLAGS: -l_lightgbm
#include <stdlib.h>
#include <LightGBM/c_api.h>
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/meggersntexasv8/LightGBM/engine"
)

// Engine is the cgo-backed engine.API implementation. It is stateless;
// all state lives behind the C library's handles.
type Engine struct{}

var _ engine.API = Engine{}

// New returns the cgo-backed engine.
func New() Engine { return Engine{} }

// safeCall converts a C API status into an error carrying the library's
// last error message.
func safeCall(ret C.int) error {
	if ret != 0 {
		return errors.New(C.GoString(C.LGBM_GetLastError()))
	}
	return nil
}

// LastError returns the C library's last error message.
func (Engine) LastError() string {
	return C.GoString(C.LGBM_GetLastError())
}

// bufferPtr exposes a Buffer's backing array to C along with its dtype
// code. The DType values match the C API dtype constants.
func bufferPtr(b engine.Buffer) (unsafe.Pointer, C.int) {
	dtype := C.int(b.DType())
	switch b.DType() {
	case engine.Float32:
		if s := b.Float32s(); len(s) > 0 {
			return unsafe.Pointer(&s[0]), dtype
		}
	case engine.Float64:
		if s := b.Float64s(); len(s) > 0 {
			return unsafe.Pointer(&s[0]), dtype
		}
	case engine.Int32:
		if s := b.Int32s(); len(s) > 0 {
			return unsafe.Pointer(&s[0]), dtype
		}
	case engine.Int64:
		if s := b.Int64s(); len(s) > 0 {
			return unsafe.Pointer(&s[0]), dtype
		}
	}
	return nil, dtype
}

func datasetPtr(h engine.DatasetHandle) C.DatasetHandle {
	return C.DatasetHandle(unsafe.Pointer(h))
}

func boosterPtr(h engine.BoosterHandle) C.BoosterHandle {
	return C.BoosterHandle(unsafe.Pointer(h))
}

func (Engine) DatasetCreateFromFile(path, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	var out C.DatasetHandle
	if err := safeCall(C.LGBM_DatasetCreateFromFile(cPath, cParams, datasetPtr(ref), &out)); err != nil {
		return 0, err
	}
	return engine.DatasetHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) DatasetCreateFromMat(data engine.Buffer, rows, cols int, rowMajor bool, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	ptr, dtype := bufferPtr(data)
	isRowMajor := C.int(0)
	if rowMajor {
		isRowMajor = 1
	}
	var out C.DatasetHandle
	err := safeCall(C.LGBM_DatasetCreateFromMat(
		ptr, dtype, C.int32_t(rows), C.int32_t(cols), isRowMajor,
		cParams, datasetPtr(ref), &out))
	if err != nil {
		return 0, err
	}
	return engine.DatasetHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) DatasetCreateFromCSR(rowPtr engine.Buffer, colIdx []int32, values engine.Buffer, numCols int, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	indptr, indptrType := bufferPtr(rowPtr)
	data, dataType := bufferPtr(values)
	var indices unsafe.Pointer
	if len(colIdx) > 0 {
		indices = unsafe.Pointer(&colIdx[0])
	}
	var out C.DatasetHandle
	err := safeCall(C.LGBM_DatasetCreateFromCSR(
		indptr, indptrType, (*C.int32_t)(indices), data, dataType,
		C.int64_t(rowPtr.Len()), C.int64_t(values.Len()), C.int64_t(numCols),
		cParams, datasetPtr(ref), &out))
	if err != nil {
		return 0, err
	}
	return engine.DatasetHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) DatasetCreateFromCSC(colPtr engine.Buffer, rowIdx []int32, values engine.Buffer, numRows int, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	indptr, indptrType := bufferPtr(colPtr)
	data, dataType := bufferPtr(values)
	var indices unsafe.Pointer
	if len(rowIdx) > 0 {
		indices = unsafe.Pointer(&rowIdx[0])
	}
	var out C.DatasetHandle
	err := safeCall(C.LGBM_DatasetCreateFromCSC(
		indptr, indptrType, (*C.int32_t)(indices), data, dataType,
		C.int64_t(colPtr.Len()), C.int64_t(values.Len()), C.int64_t(numRows),
		cParams, datasetPtr(ref), &out))
	if err != nil {
		return 0, err
	}
	return engine.DatasetHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) DatasetGetSubset(h engine.DatasetHandle, indices []int32, params string) (engine.DatasetHandle, error) {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	var idx *C.int32_t
	if len(indices) > 0 {
		idx = (*C.int32_t)(unsafe.Pointer(&indices[0]))
	}
	var out C.DatasetHandle
	err := safeCall(C.LGBM_DatasetGetSubset(
		datasetPtr(h), idx, C.int32_t(len(indices)), cParams, &out))
	if err != nil {
		return 0, err
	}
	return engine.DatasetHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) DatasetSetField(h engine.DatasetHandle, field string, data engine.Buffer) error {
	cField := C.CString(field)
	defer C.free(unsafe.Pointer(cField))

	ptr, dtype := bufferPtr(data)
	return safeCall(C.LGBM_DatasetSetField(
		datasetPtr(h), cField, ptr, C.int(data.Len()), dtype))
}

func (Engine) DatasetGetField(h engine.DatasetHandle, field string) (engine.Buffer, error) {
	cField := C.CString(field)
	defer C.free(unsafe.Pointer(cField))

	var outLen C.int
	var outPtr unsafe.Pointer
	var outType C.int
	err := safeCall(C.LGBM_DatasetGetField(
		datasetPtr(h), cField, &outLen, &outPtr, &outType))
	if err != nil {
		return engine.Buffer{}, err
	}
	n := int(outLen)
	switch engine.DType(outType) {
	case engine.Float32:
		src := unsafe.Slice((*float32)(outPtr), n)
		return engine.F32(append([]float32(nil), src...)), nil
	case engine.Float64:
		src := unsafe.Slice((*float64)(outPtr), n)
		return engine.F64(append([]float64(nil), src...)), nil
	case engine.Int32:
		src := unsafe.Slice((*int32)(outPtr), n)
		return engine.I32(append([]int32(nil), src...)), nil
	case engine.Int64:
		src := unsafe.Slice((*int64)(outPtr), n)
		return engine.I64(append([]int64(nil), src...)), nil
	default:
		return engine.Buffer{}, errors.Errorf("field %s returned unknown dtype %d", field, int(outType))
	}
}

func (Engine) DatasetSetFeatureNames(h engine.DatasetHandle, names []string) error {
	cNames := make([]*C.char, len(names))
	for i, name := range names {
		cNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cNames[i]))
	}
	var ptr **C.char
	if len(cNames) > 0 {
		ptr = &cNames[0]
	}
	return safeCall(C.LGBM_DatasetSetFeatureNames(datasetPtr(h), ptr, C.int(len(names))))
}

func (Engine) DatasetNumRows(h engine.DatasetHandle) (int, error) {
	var out C.int32_t
	if err := safeCall(C.LGBM_DatasetGetNumData(datasetPtr(h), &out)); err != nil {
		return 0, err
	}
	return int(out), nil
}

func (Engine) DatasetNumFeatures(h engine.DatasetHandle) (int, error) {
	var out C.int32_t
	if err := safeCall(C.LGBM_DatasetGetNumFeature(datasetPtr(h), &out)); err != nil {
		return 0, err
	}
	return int(out), nil
}

func (Engine) DatasetSaveBinary(h engine.DatasetHandle, path string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	return safeCall(C.LGBM_DatasetSaveBinary(datasetPtr(h), cPath))
}

func (Engine) DatasetFree(h engine.DatasetHandle) error {
	return safeCall(C.LGBM_DatasetFree(datasetPtr(h)))
}

func (Engine) BoosterCreate(train engine.DatasetHandle, params string) (engine.BoosterHandle, error) {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	var out C.BoosterHandle
	if err := safeCall(C.LGBM_BoosterCreate(datasetPtr(train), cParams, &out)); err != nil {
		return 0, err
	}
	return engine.BoosterHandle(uintptr(unsafe.Pointer(out))), nil
}

func (Engine) BoosterCreateFromFile(path string) (engine.BoosterHandle, int, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var numIter C.int
	var out C.BoosterHandle
	if err := safeCall(C.LGBM_BoosterCreateFromModelfile(cPath, &numIter, &out)); err != nil {
		return 0, 0, err
	}
	return engine.BoosterHandle(uintptr(unsafe.Pointer(out))), int(numIter), nil
}

func (Engine) BoosterFree(h engine.BoosterHandle) error {
	return safeCall(C.LGBM_BoosterFree(boosterPtr(h)))
}

func (Engine) BoosterMerge(dst, src engine.BoosterHandle) error {
	return safeCall(C.LGBM_BoosterMerge(boosterPtr(dst), boosterPtr(src)))
}

func (Engine) BoosterAddValidData(h engine.BoosterHandle, data engine.DatasetHandle) error {
	return safeCall(C.LGBM_BoosterAddValidData(boosterPtr(h), datasetPtr(data)))
}

func (Engine) BoosterResetTrainingData(h engine.BoosterHandle, data engine.DatasetHandle) error {
	return safeCall(C.LGBM_BoosterResetTrainingData(boosterPtr(h), datasetPtr(data)))
}

func (Engine) BoosterResetParameter(h engine.BoosterHandle, params string) error {
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))
	return safeCall(C.LGBM_BoosterResetParameter(boosterPtr(h), cParams))
}

func (Engine) BoosterUpdateOneIter(h engine.BoosterHandle) (bool, error) {
	var finished C.int
	if err := safeCall(C.LGBM_BoosterUpdateOneIter(boosterPtr(h), &finished)); err != nil {
		return false, err
	}
	return finished == 1, nil
}

func (Engine) BoosterUpdateOneIterCustom(h engine.BoosterHandle, grad, hess []float32) (bool, error) {
	var gradPtr, hessPtr *C.float
	if len(grad) > 0 {
		gradPtr = (*C.float)(unsafe.Pointer(&grad[0]))
	}
	if len(hess) > 0 {
		hessPtr = (*C.float)(unsafe.Pointer(&hess[0]))
	}
	var finished C.int
	err := safeCall(C.LGBM_BoosterUpdateOneIterCustom(boosterPtr(h), gradPtr, hessPtr, &finished))
	if err != nil {
		return false, err
	}
	return finished == 1, nil
}

func (Engine) BoosterRollbackOneIter(h engine.BoosterHandle) error {
	return safeCall(C.LGBM_BoosterRollbackOneIter(boosterPtr(h)))
}

func (Engine) BoosterCurrentIteration(h engine.BoosterHandle) (int, error) {
	var out C.int
	if err := safeCall(C.LGBM_BoosterGetCurrentIteration(boosterPtr(h), &out)); err != nil {
		return 0, err
	}
	return int(out), nil
}

func (Engine) BoosterNumClasses(h engine.BoosterHandle) (int, error) {
	var out C.int
	if err := safeCall(C.LGBM_BoosterGetNumClasses(boosterPtr(h), &out)); err != nil {
		return 0, err
	}
	return int(out), nil
}

func (Engine) BoosterEvalCounts(h engine.BoosterHandle) (int, error) {
	var out C.int
	if err := safeCall(C.LGBM_BoosterGetEvalCounts(boosterPtr(h), &out)); err != nil {
		return 0, err
	}
	return int(out), nil
}

func (e Engine) BoosterEvalNames(h engine.BoosterHandle) ([]string, error) {
	count, err := e.BoosterEvalCounts(h)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	// Grow-and-retry: the C API reports the required buffer length when
	// the provided one is too small.
	bufLen := 255
	for {
		flat := make([]byte, count*bufLen)
		ptrs := make([]*C.char, count)
		for i := range ptrs {
			ptrs[i] = (*C.char)(unsafe.Pointer(&flat[i*bufLen]))
		}
		var outLen C.int
		var required C.size_t
		err := safeCall(C.LGBM_BoosterGetEvalNames(
			boosterPtr(h), C.int(count), &outLen, C.size_t(bufLen), &required, &ptrs[0]))
		if err != nil {
			return nil, err
		}
		if int(required) > bufLen {
			bufLen = int(required)
			continue
		}
		names := make([]string, int(outLen))
		for i := range names {
			names[i] = C.GoString(ptrs[i])
		}
		return names, nil
	}
}

func (e Engine) BoosterGetEval(h engine.BoosterHandle, dataIdx int) ([]float64, error) {
	count, err := e.BoosterEvalCounts(h)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]float64, count)
	var outLen C.int
	err = safeCall(C.LGBM_BoosterGetEval(
		boosterPtr(h), C.int(dataIdx), &outLen, (*C.double)(unsafe.Pointer(&out[0]))))
	if err != nil {
		return nil, err
	}
	return out[:int(outLen)], nil
}

func (Engine) BoosterGetPredict(h engine.BoosterHandle, dataIdx int, out []float64) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	var outLen C.int64_t
	err := safeCall(C.LGBM_BoosterGetPredict(
		boosterPtr(h), C.int(dataIdx), &outLen, (*C.double)(unsafe.Pointer(&out[0]))))
	if err != nil {
		return 0, err
	}
	return int(outLen), nil
}

func (Engine) BoosterCalcNumPredict(h engine.BoosterHandle, rows int, predictType engine.PredictType, numIteration int) (int, error) {
	var out C.int64_t
	err := safeCall(C.LGBM_BoosterCalcNumPredict(
		boosterPtr(h), C.int(rows), C.int(predictType), C.int(0), C.int(numIteration), &out))
	if err != nil {
		return 0, err
	}
	return int(out), nil
}

func (Engine) BoosterPredictForFile(h engine.BoosterHandle, dataPath string, hasHeader bool, predictType engine.PredictType, numIteration int, resultPath string) error {
	cData := C.CString(dataPath)
	defer C.free(unsafe.Pointer(cData))
	cResult := C.CString(resultPath)
	defer C.free(unsafe.Pointer(cResult))
	cParams := C.CString("")
	defer C.free(unsafe.Pointer(cParams))

	header := C.int(0)
	if hasHeader {
		header = 1
	}
	return safeCall(C.LGBM_BoosterPredictForFile(
		boosterPtr(h), cData, header, C.int(predictType), C.int(0), C.int(numIteration),
		cParams, cResult))
}

func (Engine) BoosterPredictForMat(h engine.BoosterHandle, data engine.Buffer, rows, cols int, rowMajor bool, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	cParams := C.CString("")
	defer C.free(unsafe.Pointer(cParams))

	ptr, dtype := bufferPtr(data)
	isRowMajor := C.int(0)
	if rowMajor {
		isRowMajor = 1
	}
	var outPtr *C.double
	if len(out) > 0 {
		outPtr = (*C.double)(unsafe.Pointer(&out[0]))
	}
	var outLen C.int64_t
	err := safeCall(C.LGBM_BoosterPredictForMat(
		boosterPtr(h), ptr, dtype, C.int32_t(rows), C.int32_t(cols), isRowMajor,
		C.int(predictType), C.int(0), C.int(numIteration), cParams, &outLen, outPtr))
	if err != nil {
		return 0, err
	}
	return int(outLen), nil
}

func (Engine) BoosterPredictForCSR(h engine.BoosterHandle, rowPtr engine.Buffer, colIdx []int32, values engine.Buffer, numCols int, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	cParams := C.CString("")
	defer C.free(unsafe.Pointer(cParams))

	indptr, indptrType := bufferPtr(rowPtr)
	data, dataType := bufferPtr(values)
	var indices unsafe.Pointer
	if len(colIdx) > 0 {
		indices = unsafe.Pointer(&colIdx[0])
	}
	var outPtr *C.double
	if len(out) > 0 {
		outPtr = (*C.double)(unsafe.Pointer(&out[0]))
	}
	var outLen C.int64_t
	err := safeCall(C.LGBM_BoosterPredictForCSR(
		boosterPtr(h), indptr, indptrType, (*C.int32_t)(indices), data, dataType,
		C.int64_t(rowPtr.Len()), C.int64_t(values.Len()), C.int64_t(numCols),
		C.int(predictType), C.int(0), C.int(numIteration), cParams, &outLen, outPtr))
	if err != nil {
		return 0, err
	}
	return int(outLen), nil
}

func (Engine) BoosterPredictForCSC(h engine.BoosterHandle, colPtr engine.Buffer, rowIdx []int32, values engine.Buffer, numRows int, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	cParams := C.CString("")
	defer C.free(unsafe.Pointer(cParams))

	indptr, indptrType := bufferPtr(colPtr)
	data, dataType := bufferPtr(values)
	var indices unsafe.Pointer
	if len(rowIdx) > 0 {
		indices = unsafe.Pointer(&rowIdx[0])
	}
	var outPtr *C.double
	if len(out) > 0 {
		outPtr = (*C.double)(unsafe.Pointer(&out[0]))
	}
	var outLen C.int64_t
	err := safeCall(C.LGBM_BoosterPredictForCSC(
		boosterPtr(h), indptr, indptrType, (*C.int32_t)(indices), data, dataType,
		C.int64_t(colPtr.Len()), C.int64_t(values.Len()), C.int64_t(numRows),
		C.int(predictType), C.int(0), C.int(numIteration), cParams, &outLen, outPtr))
	if err != nil {
		return 0, err
	}
	return int(outLen), nil
}

func (Engine) BoosterSaveModel(h engine.BoosterHandle, path string, numIteration int) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	return safeCall(C.LGBM_BoosterSaveModel(
		boosterPtr(h), C.int(0), C.int(numIteration), C.int(0), cPath))
}

func (Engine) BoosterDumpModel(h engine.BoosterHandle) (string, error) {
	// Grow-and-retry: the C API reports the required buffer length when
	// the provided one is too small.
	bufLen := int64(1 << 20)
	for {
		buf := make([]byte, bufLen)
		var outLen C.int64_t
		err := safeCall(C.LGBM_BoosterDumpModel(
			boosterPtr(h), C.int(0), C.int(-1), C.int(0), C.int64_t(bufLen), &outLen,
			(*C.char)(unsafe.Pointer(&buf[0]))))
		if err != nil {
			return "", err
		}
		if int64(outLen) > bufLen {
			bufLen = int64(outLen)
			continue
		}
		return string(buf[:int64(outLen)-1]), nil
	}
}
