// Package enginetest provides a deterministic in-memory implementation of
// the engine.API contract for tests and examples.
//
// The fake engine does not grow real trees. Predictions are a fixed
// function of the row's feature sum, the contributing iteration count and
// the class index, so tests can assert exact cache, clamping and layout
// behavior without a native engine. Metric values come from an optional
// EvalValue hook, which lets a test script improvement and regression
// sequences for early-stopping scenarios.
package enginetest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/meggersntexasv8/LightGBM/engine"
)

// Engine is an in-memory engine.API implementation. The zero value is not
// usable; create one with New. All methods are safe for concurrent use.
type Engine struct {
	// EvalValue, when set, scripts built-in metric values per metric name,
	// dataset index and completed iteration count. When nil, metrics decay
	// as 1/iteration plus a small per-dataset offset.
	EvalValue func(metric string, dataIdx, iteration int) float64

	mu         sync.Mutex
	lastError  string
	nextHandle uintptr
	datasets   map[engine.DatasetHandle]*dataset
	boosters   map[engine.BoosterHandle]*booster
}

var _ engine.API = (*Engine)(nil)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		nextHandle: 1,
		datasets:   make(map[engine.DatasetHandle]*dataset),
		boosters:   make(map[engine.BoosterHandle]*booster),
	}
}

type dataset struct {
	rows, cols   int
	data         []float64 // row-major
	fields       map[string][]float64
	groupSizes   []int32
	featureNames []string
	bins         []int
	freed        bool
}

type booster struct {
	train     engine.DatasetHandle
	valids    []engine.DatasetHandle
	iteration int
	numClass  int
	numCols   int
	params    map[string]string
	metrics   []string
	freed     bool
}

func (e *Engine) fail(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	e.lastError = msg
	return fmt.Errorf("enginetest: %s", msg)
}

// LastError returns the message of the most recent failing call.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

func (e *Engine) newDataset(d *dataset) engine.DatasetHandle {
	h := engine.DatasetHandle(e.nextHandle)
	e.nextHandle++
	e.datasets[h] = d
	return h
}

func (e *Engine) newBooster(b *booster) engine.BoosterHandle {
	h := engine.BoosterHandle(e.nextHandle)
	e.nextHandle++
	e.boosters[h] = b
	return h
}

func (e *Engine) dataset(h engine.DatasetHandle) (*dataset, error) {
	d, ok := e.datasets[h]
	if !ok || d.freed {
		return nil, e.fail("unknown dataset handle %d", h)
	}
	return d, nil
}

func (e *Engine) booster(h engine.BoosterHandle) (*booster, error) {
	b, ok := e.boosters[h]
	if !ok || b.freed {
		return nil, e.fail("unknown booster handle %d", h)
	}
	return b, nil
}

// parseParams splits the engine's "k1=v1 k2=v2" parameter string.
func parseParams(params string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Fields(params) {
		if i := strings.IndexByte(pair, '='); i > 0 {
			out[pair[:i]] = pair[i+1:]
		}
	}
	return out
}

func paramInt(p map[string]string, key string, def int) int {
	if v, ok := p[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func paramBool(p map[string]string, key string) bool {
	v := p[key]
	return v == "true" || v == "True" || v == "1"
}

// computeBins derives per-feature bin counts: the number of distinct
// values in the column, capped at max_bin. Referenced construction
// inherits the reference's bins instead.
func computeBins(data []float64, rows, cols, maxBin int) []int {
	bins := make([]int, cols)
	for j := 0; j < cols; j++ {
		distinct := make(map[float64]struct{})
		for i := 0; i < rows; i++ {
			distinct[data[i*cols+j]] = struct{}{}
		}
		n := len(distinct)
		if maxBin > 0 && n > maxBin {
			n = maxBin
		}
		bins[j] = n
	}
	return bins
}

func (e *Engine) finishDataset(d *dataset, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	p := parseParams(params)
	if ref != 0 {
		refDS, err := e.dataset(ref)
		if err != nil {
			return 0, err
		}
		if refDS.cols != d.cols {
			return 0, e.fail("reference has %d features, data has %d", refDS.cols, d.cols)
		}
		d.bins = append([]int(nil), refDS.bins...)
	} else {
		d.bins = computeBins(d.data, d.rows, d.cols, paramInt(p, "max_bin", 255))
	}
	return e.newDataset(d), nil
}

// DatasetCreateFromFile parses a tab- or comma-separated text file whose
// first column is the label.
func (e *Engine) DatasetCreateFromFile(path, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := parseParams(params)
	label, data, cols, err := readDataFile(path, paramBool(p, "has_header") || paramBool(p, "header"))
	if err != nil {
		return 0, e.fail("reading %s: %v", path, err)
	}
	d := &dataset{
		rows:   len(label),
		cols:   cols,
		data:   data,
		fields: map[string][]float64{engine.FieldLabel: label},
	}
	return e.finishDataset(d, params, ref)
}

// DatasetCreateFromMat builds a dataset from a dense matrix.
func (e *Engine) DatasetCreateFromMat(data engine.Buffer, rows, cols int, rowMajor bool, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	flat := data.AsFloat64s()
	if len(flat) != rows*cols {
		return 0, e.fail("matrix buffer has %d values, want %d", len(flat), rows*cols)
	}
	if !rowMajor {
		rm := make([]float64, len(flat))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				rm[i*cols+j] = flat[j*rows+i]
			}
		}
		flat = rm
	}
	d := &dataset{rows: rows, cols: cols, data: flat, fields: map[string][]float64{}}
	return e.finishDataset(d, params, ref)
}

// DatasetCreateFromCSR builds a dataset by densifying a row-compressed
// triple.
func (e *Engine) DatasetCreateFromCSR(rowPtr engine.Buffer, colIdx []int32, values engine.Buffer, numCols int, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ptr := rowPtr.AsFloat64s()
	vals := values.AsFloat64s()
	rows := len(ptr) - 1
	flat := make([]float64, rows*numCols)
	for i := 0; i < rows; i++ {
		for k := int(ptr[i]); k < int(ptr[i+1]); k++ {
			if k >= len(vals) || int(colIdx[k]) >= numCols {
				return 0, e.fail("csr index out of range at entry %d", k)
			}
			flat[i*numCols+int(colIdx[k])] = vals[k]
		}
	}
	d := &dataset{rows: rows, cols: numCols, data: flat, fields: map[string][]float64{}}
	return e.finishDataset(d, params, ref)
}

// DatasetCreateFromCSC builds a dataset by densifying a column-compressed
// triple.
func (e *Engine) DatasetCreateFromCSC(colPtr engine.Buffer, rowIdx []int32, values engine.Buffer, numRows int, params string, ref engine.DatasetHandle) (engine.DatasetHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ptr := colPtr.AsFloat64s()
	vals := values.AsFloat64s()
	cols := len(ptr) - 1
	flat := make([]float64, numRows*cols)
	for j := 0; j < cols; j++ {
		for k := int(ptr[j]); k < int(ptr[j+1]); k++ {
			if k >= len(vals) || int(rowIdx[k]) >= numRows {
				return 0, e.fail("csc index out of range at entry %d", k)
			}
			flat[int(rowIdx[k])*cols+j] = vals[k]
		}
	}
	d := &dataset{rows: numRows, cols: cols, data: flat, fields: map[string][]float64{}}
	return e.finishDataset(d, params, ref)
}

// DatasetGetSubset selects rows out of an existing dataset, inheriting its
// bins and slicing its fields.
func (e *Engine) DatasetGetSubset(h engine.DatasetHandle, indices []int32, params string) (engine.DatasetHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, err := e.dataset(h)
	if err != nil {
		return 0, err
	}
	sub := &dataset{
		rows:         len(indices),
		cols:         parent.cols,
		data:         make([]float64, len(indices)*parent.cols),
		fields:       map[string][]float64{},
		featureNames: parent.featureNames,
		bins:         append([]int(nil), parent.bins...),
	}
	for i, idx := range indices {
		if int(idx) < 0 || int(idx) >= parent.rows {
			return 0, e.fail("subset index %d out of range [0,%d)", idx, parent.rows)
		}
		copy(sub.data[i*sub.cols:(i+1)*sub.cols], parent.data[int(idx)*parent.cols:(int(idx)+1)*parent.cols])
	}
	for field, vals := range parent.fields {
		if field == engine.FieldInitScore && len(vals) != parent.rows {
			continue // class-major layout does not survive row selection here
		}
		picked := make([]float64, len(indices))
		for i, idx := range indices {
			if int(idx) < len(vals) {
				picked[i] = vals[idx]
			}
		}
		sub.fields[field] = picked
	}
	return e.newDataset(sub), nil
}

// DatasetSetField stores an auxiliary column. Group sizes are kept as
// sizes internally and converted to prefix boundaries on read-back.
func (e *Engine) DatasetSetField(h engine.DatasetHandle, field string, data engine.Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return err
	}
	kind, ok := engine.FieldKind(field)
	if !ok {
		return e.fail("unknown field %q", field)
	}
	if data.IsNil() {
		if field == engine.FieldGroup {
			d.groupSizes = nil
		} else {
			delete(d.fields, field)
		}
		return nil
	}
	if data.DType() != kind {
		return e.fail("field %q requires %s data, got %s", field, kind, data.DType())
	}
	if field == engine.FieldGroup {
		sizes := append([]int32(nil), data.Int32s()...)
		total := 0
		for _, s := range sizes {
			total += int(s)
		}
		if total != d.rows {
			return e.fail("group sizes sum to %d, dataset has %d rows", total, d.rows)
		}
		d.groupSizes = sizes
		return nil
	}
	vals := data.AsFloat64s()
	if field != engine.FieldInitScore && len(vals) != d.rows {
		return e.fail("field %q has %d values, dataset has %d rows", field, len(vals), d.rows)
	}
	d.fields[field] = append([]float64(nil), vals...)
	return nil
}

// DatasetGetField reads an auxiliary column back in the field's declared
// element kind. Unset fields are a zero-length buffer.
func (e *Engine) DatasetGetField(h engine.DatasetHandle, field string) (engine.Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return engine.Buffer{}, err
	}
	if field == engine.FieldGroup {
		if d.groupSizes == nil {
			return engine.I32(nil), nil
		}
		boundaries := make([]int32, len(d.groupSizes)+1)
		for i, s := range d.groupSizes {
			boundaries[i+1] = boundaries[i] + s
		}
		return engine.I32(boundaries), nil
	}
	kind, ok := engine.FieldKind(field)
	if !ok {
		return engine.Buffer{}, e.fail("unknown field %q", field)
	}
	vals, ok := d.fields[field]
	if !ok {
		return engine.F32(nil), nil
	}
	if kind != engine.Float32 {
		return engine.Buffer{}, e.fail("field %q has unsupported kind %s", field, kind)
	}
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v)
	}
	return engine.F32(out), nil
}

// DatasetSetFeatureNames stores the column names.
func (e *Engine) DatasetSetFeatureNames(h engine.DatasetHandle, names []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return err
	}
	if len(names) != d.cols {
		return e.fail("%d feature names for %d features", len(names), d.cols)
	}
	d.featureNames = append([]string(nil), names...)
	return nil
}

// DatasetNumRows returns the row count.
func (e *Engine) DatasetNumRows(h engine.DatasetHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return 0, err
	}
	return d.rows, nil
}

// DatasetNumFeatures returns the feature count.
func (e *Engine) DatasetNumFeatures(h engine.DatasetHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return 0, err
	}
	return d.cols, nil
}

// DatasetSaveBinary writes a JSON snapshot of the dataset.
func (e *Engine) DatasetSaveBinary(h engine.DatasetHandle, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(h)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(map[string]interface{}{
		"rows": d.rows,
		"cols": d.cols,
		"bins": d.bins,
	})
	if err != nil {
		return e.fail("encoding dataset: %v", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return e.fail("writing %s: %v", path, err)
	}
	return nil
}

// DatasetFree releases a dataset handle. Freeing twice is an error.
func (e *Engine) DatasetFree(h engine.DatasetHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.datasets[h]
	if !ok || d.freed {
		return e.fail("double free of dataset handle %d", h)
	}
	d.freed = true
	return nil
}

// Bins exposes the per-feature bin counts of a dataset for test
// assertions; it is not part of the engine.API contract.
func (e *Engine) Bins(h engine.DatasetHandle) []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.datasets[h]
	if !ok {
		return nil
	}
	return append([]int(nil), d.bins...)
}

// FeatureNames exposes a dataset's stored feature names for test
// assertions; it is not part of the engine.API contract.
func (e *Engine) FeatureNames(h engine.DatasetHandle) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.datasets[h]
	if !ok {
		return nil
	}
	return append([]string(nil), d.featureNames...)
}

// readDataFile parses tab- or comma-separated numeric rows; column 0 is
// the label.
func readDataFile(path string, hasHeader bool) (label []float64, data []float64, cols int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first && hasHeader {
			first = false
			continue
		}
		first = false
		toks := strings.FieldsFunc(line, func(r rune) bool { return r == '\t' || r == ',' })
		if len(toks) < 2 {
			return nil, nil, 0, fmt.Errorf("row has %d columns, need a label and at least one feature", len(toks))
		}
		if cols == 0 {
			cols = len(toks) - 1
		} else if len(toks)-1 != cols {
			return nil, nil, 0, fmt.Errorf("row has %d features, previous rows had %d", len(toks)-1, cols)
		}
		lv, err := strconv.ParseFloat(toks[0], 64)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("parsing label %q: %v", toks[0], err)
		}
		label = append(label, lv)
		for _, tok := range toks[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("parsing value %q: %v", tok, err)
			}
			data = append(data, v)
		}
	}
	return label, data, cols, sc.Err()
}
