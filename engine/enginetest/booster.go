package enginetest

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/meggersntexasv8/LightGBM/engine"
)

// score is the fake model output for one row: proportional to the row's
// feature sum and the contributing iteration count, offset per class.
// Tests rely on its monotonicity in the iteration count to observe
// clamping and rollback.
func score(rowSum float64, class, iterations int) float64 {
	return rowSum*0.001*float64(iterations) + 0.01*float64(class)
}

func rowSum(data []float64, cols, row int) float64 {
	sum := 0.0
	for _, v := range data[row*cols : (row+1)*cols] {
		sum += v
	}
	return sum
}

func parseMetrics(p map[string]string) []string {
	if m, ok := p["metric"]; ok && m != "" && m != "None" {
		return strings.Split(m, ",")
	}
	return []string{"l2"}
}

// BoosterCreate creates a booster bound to a training dataset.
func (e *Engine) BoosterCreate(train engine.DatasetHandle, params string) (engine.BoosterHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dataset(train)
	if err != nil {
		return 0, err
	}
	p := parseParams(params)
	b := &booster{
		train:    train,
		numClass: paramInt(p, "num_class", 1),
		numCols:  d.cols,
		params:   p,
		metrics:  parseMetrics(p),
	}
	return e.newBooster(b), nil
}

type modelFile struct {
	Iterations int `json:"iterations"`
	NumClass   int `json:"num_class"`
	NumCols    int `json:"num_cols"`
}

// BoosterCreateFromFile loads a model snapshot written by BoosterSaveModel.
func (e *Engine) BoosterCreateFromFile(path string) (engine.BoosterHandle, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, e.fail("reading model %s: %v", path, err)
	}
	var m modelFile
	if err := json.Unmarshal(blob, &m); err != nil {
		return 0, 0, e.fail("parsing model %s: %v", path, err)
	}
	if m.NumClass < 1 {
		m.NumClass = 1
	}
	b := &booster{
		iteration: m.Iterations,
		numClass:  m.NumClass,
		numCols:   m.NumCols,
		params:    map[string]string{},
		metrics:   []string{"l2"},
	}
	return e.newBooster(b), m.Iterations, nil
}

// BoosterFree releases a booster handle. Freeing twice is an error.
func (e *Engine) BoosterFree(h engine.BoosterHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.boosters[h]
	if !ok || b.freed {
		return e.fail("double free of booster handle %d", h)
	}
	b.freed = true
	return nil
}

// BoosterMerge folds src's iterations into dst.
func (e *Engine) BoosterMerge(dst, src engine.BoosterHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.booster(dst)
	if err != nil {
		return err
	}
	s, err := e.booster(src)
	if err != nil {
		return err
	}
	d.iteration += s.iteration
	return nil
}

// BoosterAddValidData registers a validation dataset.
func (e *Engine) BoosterAddValidData(h engine.BoosterHandle, data engine.DatasetHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	if _, err := e.dataset(data); err != nil {
		return err
	}
	b.valids = append(b.valids, data)
	return nil
}

// BoosterResetTrainingData swaps the training dataset.
func (e *Engine) BoosterResetTrainingData(h engine.BoosterHandle, data engine.DatasetHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	d, err := e.dataset(data)
	if err != nil {
		return err
	}
	b.train = data
	b.numCols = d.cols
	return nil
}

// BoosterResetParameter merges parameters, rebuilding the metric list when
// the metric key changes.
func (e *Engine) BoosterResetParameter(h engine.BoosterHandle, params string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	p := parseParams(params)
	for k, v := range p {
		b.params[k] = v
	}
	if _, ok := p["metric"]; ok {
		b.metrics = parseMetrics(b.params)
	}
	return nil
}

// BoosterUpdateOneIter advances one iteration. The fake engine never
// declares training finished on its own.
func (e *Engine) BoosterUpdateOneIter(h engine.BoosterHandle) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return false, err
	}
	b.iteration++
	return false, nil
}

// BoosterUpdateOneIterCustom advances one iteration with caller-supplied
// gradients, validating the class-major shape.
func (e *Engine) BoosterUpdateOneIterCustom(h engine.BoosterHandle, grad, hess []float32) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return false, err
	}
	d, err := e.dataset(b.train)
	if err != nil {
		return false, err
	}
	if len(grad) != len(hess) || len(grad) != d.rows*b.numClass {
		return false, e.fail("gradient length %d, want %d", len(grad), d.rows*b.numClass)
	}
	b.iteration++
	return false, nil
}

// BoosterRollbackOneIter removes the most recent iteration.
func (e *Engine) BoosterRollbackOneIter(h engine.BoosterHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	if b.iteration == 0 {
		return e.fail("cannot roll back before the first iteration")
	}
	b.iteration--
	return nil
}

// BoosterCurrentIteration returns the completed iteration count.
func (e *Engine) BoosterCurrentIteration(h engine.BoosterHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	return b.iteration, nil
}

// BoosterNumClasses returns the class count.
func (e *Engine) BoosterNumClasses(h engine.BoosterHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	return b.numClass, nil
}

// BoosterEvalCounts returns the configured metric count.
func (e *Engine) BoosterEvalCounts(h engine.BoosterHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	return len(b.metrics), nil
}

// BoosterEvalNames returns the configured metric names.
func (e *Engine) BoosterEvalNames(h engine.BoosterHandle) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), b.metrics...), nil
}

// BoosterGetEval returns one value per metric from the EvalValue hook, or
// a default decaying loss.
func (e *Engine) BoosterGetEval(h engine.BoosterHandle, dataIdx int) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return nil, err
	}
	if dataIdx < 0 || dataIdx > len(b.valids) {
		return nil, e.fail("eval data index %d out of range [0,%d]", dataIdx, len(b.valids))
	}
	out := make([]float64, len(b.metrics))
	for i, m := range b.metrics {
		if e.EvalValue != nil {
			out[i] = e.EvalValue(m, dataIdx, b.iteration)
		} else {
			out[i] = 1.0/float64(b.iteration+1) + 0.001*float64(dataIdx)
		}
	}
	return out, nil
}

// BoosterGetPredict fills out with current-iteration predictions for a
// registered dataset, class-major.
func (e *Engine) BoosterGetPredict(h engine.BoosterHandle, dataIdx int, out []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	var dh engine.DatasetHandle
	switch {
	case dataIdx == 0:
		dh = b.train
	case dataIdx > 0 && dataIdx <= len(b.valids):
		dh = b.valids[dataIdx-1]
	default:
		return 0, e.fail("predict data index %d out of range [0,%d]", dataIdx, len(b.valids))
	}
	d, err := e.dataset(dh)
	if err != nil {
		return 0, err
	}
	n := d.rows * b.numClass
	if len(out) < n {
		return 0, e.fail("prediction buffer holds %d values, need %d", len(out), n)
	}
	for c := 0; c < b.numClass; c++ {
		for r := 0; r < d.rows; r++ {
			out[c*d.rows+r] = score(rowSum(d.data, d.cols, r), c, b.iteration)
		}
	}
	return n, nil
}

func (b *booster) effectiveIterations(numIteration int) int {
	if numIteration <= 0 || numIteration > b.iteration {
		return b.iteration
	}
	return numIteration
}

// BoosterCalcNumPredict reports the flat result length for rows input
// rows.
func (e *Engine) BoosterCalcNumPredict(h engine.BoosterHandle, rows int, predictType engine.PredictType, numIteration int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	if predictType == engine.PredictLeafIndex {
		return rows * b.effectiveIterations(numIteration) * b.numClass, nil
	}
	return rows * b.numClass, nil
}

// predictDense scores densified row-major data into out.
func (b *booster) predictDense(data []float64, rows, cols int, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	iters := b.effectiveIterations(numIteration)
	if predictType == engine.PredictLeafIndex {
		trees := iters * b.numClass
		n := rows * trees
		if len(out) < n {
			return 0, errTooSmall
		}
		for r := 0; r < rows; r++ {
			for t := 0; t < trees; t++ {
				out[r*trees+t] = float64((r + t) % 7)
			}
		}
		return n, nil
	}
	n := rows * b.numClass
	if len(out) < n {
		return 0, errTooSmall
	}
	for r := 0; r < rows; r++ {
		sum := rowSum(data, cols, r)
		for c := 0; c < b.numClass; c++ {
			out[r*b.numClass+c] = score(sum, c, iters)
		}
	}
	return n, nil
}

var errTooSmall = errors.New("prediction buffer too small")

// BoosterPredictForFile scores a data file and writes tab-separated
// results, one input row per line.
func (e *Engine) BoosterPredictForFile(h engine.BoosterHandle, dataPath string, hasHeader bool, predictType engine.PredictType, numIteration int, resultPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	_, data, cols, err := readDataFile(dataPath, hasHeader)
	if err != nil {
		return e.fail("reading %s: %v", dataPath, err)
	}
	rows := 0
	if cols > 0 {
		rows = len(data) / cols
	}
	perRow := b.numClass
	if predictType == engine.PredictLeafIndex {
		perRow = b.effectiveIterations(numIteration) * b.numClass
	}
	out := make([]float64, rows*perRow)
	if _, err := b.predictDense(data, rows, cols, predictType, numIteration, out); err != nil {
		return e.fail("predicting %s: %v", dataPath, err)
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < perRow; c++ {
			if c > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(formatScore(out[r*perRow+c]))
		}
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(resultPath, []byte(sb.String()), 0o644); err != nil {
		return e.fail("writing %s: %v", resultPath, err)
	}
	return nil
}

// BoosterPredictForMat scores a dense matrix into out.
func (e *Engine) BoosterPredictForMat(h engine.BoosterHandle, data engine.Buffer, rows, cols int, rowMajor bool, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	flat := data.AsFloat64s()
	if !rowMajor {
		rm := make([]float64, len(flat))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				rm[i*cols+j] = flat[j*rows+i]
			}
		}
		flat = rm
	}
	n, perr := b.predictDense(flat, rows, cols, predictType, numIteration, out)
	if perr != nil {
		return 0, e.fail("prediction buffer too small")
	}
	return n, nil
}

// BoosterPredictForCSR scores a row-compressed triple into out.
func (e *Engine) BoosterPredictForCSR(h engine.BoosterHandle, rowPtr engine.Buffer, colIdx []int32, values engine.Buffer, numCols int, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	ptr := rowPtr.AsFloat64s()
	vals := values.AsFloat64s()
	rows := len(ptr) - 1
	flat := make([]float64, rows*numCols)
	for i := 0; i < rows; i++ {
		for k := int(ptr[i]); k < int(ptr[i+1]); k++ {
			flat[i*numCols+int(colIdx[k])] = vals[k]
		}
	}
	n, perr := b.predictDense(flat, rows, numCols, predictType, numIteration, out)
	if perr != nil {
		return 0, e.fail("prediction buffer too small")
	}
	return n, nil
}

// BoosterPredictForCSC scores a column-compressed triple into out.
func (e *Engine) BoosterPredictForCSC(h engine.BoosterHandle, colPtr engine.Buffer, rowIdx []int32, values engine.Buffer, numRows int, predictType engine.PredictType, numIteration int, out []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return 0, err
	}
	ptr := colPtr.AsFloat64s()
	vals := values.AsFloat64s()
	cols := len(ptr) - 1
	flat := make([]float64, numRows*cols)
	for j := 0; j < cols; j++ {
		for k := int(ptr[j]); k < int(ptr[j+1]); k++ {
			flat[int(rowIdx[k])*cols+j] = vals[k]
		}
	}
	n, perr := b.predictDense(flat, numRows, cols, predictType, numIteration, out)
	if perr != nil {
		return 0, e.fail("prediction buffer too small")
	}
	return n, nil
}

// BoosterSaveModel writes a model snapshot loadable by
// BoosterCreateFromFile. numIteration <= 0 saves the full model.
func (e *Engine) BoosterSaveModel(h engine.BoosterHandle, path string, numIteration int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return err
	}
	iters := b.effectiveIterations(numIteration)
	blob, err := json.Marshal(modelFile{Iterations: iters, NumClass: b.numClass, NumCols: b.numCols})
	if err != nil {
		return e.fail("encoding model: %v", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return e.fail("writing %s: %v", path, err)
	}
	return nil
}

// BoosterDumpModel emits a JSON document with one two-split tree per
// boosting step, shaped like a real model dump as far as the control layer
// inspects it.
func (e *Engine) BoosterDumpModel(h engine.BoosterHandle) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.booster(h)
	if err != nil {
		return "", err
	}
	cols := b.numCols
	if cols < 1 {
		cols = 1
	}
	trees := make([]map[string]interface{}, 0, b.iteration*b.numClass)
	for t := 0; t < b.iteration*b.numClass; t++ {
		trees = append(trees, map[string]interface{}{
			"tree_index": t,
			"tree_structure": map[string]interface{}{
				"split_feature": t % cols,
				"split_gain":    1.0,
				"left_child":    map[string]interface{}{"leaf_value": 0.1},
				"right_child": map[string]interface{}{
					"split_feature": (t + 1) % cols,
					"split_gain":    0.5,
					"left_child":    map[string]interface{}{"leaf_value": -0.1},
					"right_child":   map[string]interface{}{"leaf_value": 0.2},
				},
			},
		})
	}
	blob, err := json.Marshal(map[string]interface{}{
		"num_class":              b.numClass,
		"num_tree_per_iteration": b.numClass,
		"max_feature_idx":        cols - 1,
		"tree_info":              trees,
	})
	if err != nil {
		return "", e.fail("encoding model dump: %v", err)
	}
	return string(blob), nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
