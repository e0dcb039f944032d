package lightgbm

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// PredictOptions tunes a single prediction call.
type PredictOptions struct {
	// RawScore requests the pre-transform additive score instead of the
	// objective's transformed output.
	RawScore bool
	// NumIteration limits how many iterations contribute. Values above the
	// model's total iteration count are clamped to the total; zero or
	// negative means all iterations.
	NumIteration int
	// DataHasHeader applies to file data sources only.
	DataHasHeader bool
}

// Predictor scores data against a fixed model snapshot.
//
// A Predictor either owns its engine handle (loaded from a model file) or
// borrows it from a live Booster. Closing a borrowed Predictor is a no-op
// on the handle; the Booster stays in charge of its lifetime. Predictors
// sharing one handle also serve as lineage markers: a Booster only accepts
// validation or replacement training data whose continuation predictor is
// the same Predictor value its own training data carries.
type Predictor struct {
	eng               engine.API
	handle            engine.BoosterHandle
	numClass          int
	numTotalIteration int
	owned             bool
	closed            bool

	log log.Logger
}

// NewPredictorFromFile loads a serialized model into an owned Predictor.
func NewPredictorFromFile(path string) (*Predictor, error) {
	eng, err := requireEngine()
	if err != nil {
		return nil, err
	}
	handle, numIter, err := eng.BoosterCreateFromFile(path)
	if err != nil {
		return nil, lgberrors.Wrapf(err, "loading model from %s", path)
	}
	numClass, err := eng.BoosterNumClasses(handle)
	if err != nil {
		_ = eng.BoosterFree(handle)
		return nil, err
	}
	return &Predictor{
		eng:               eng,
		handle:            handle,
		numClass:          numClass,
		numTotalIteration: numIter,
		owned:             true,
		log:               log.GetLogger().With(log.ComponentKey, "predictor"),
	}, nil
}

// newBorrowedPredictor wraps a Booster's live handle without taking
// ownership. The iteration count is a snapshot taken now.
func newBorrowedPredictor(eng engine.API, handle engine.BoosterHandle) (*Predictor, error) {
	numIter, err := eng.BoosterCurrentIteration(handle)
	if err != nil {
		return nil, err
	}
	numClass, err := eng.BoosterNumClasses(handle)
	if err != nil {
		return nil, err
	}
	return &Predictor{
		eng:               eng,
		handle:            handle,
		numClass:          numClass,
		numTotalIteration: numIter,
		owned:             false,
		log:               log.GetLogger().With(log.ComponentKey, "predictor"),
	}, nil
}

// NumClasses returns the model's class count (1 for non-classification
// objectives).
func (p *Predictor) NumClasses() int { return p.numClass }

// NumTotalIterations returns the iteration count of the model snapshot.
func (p *Predictor) NumTotalIterations() int { return p.numTotalIteration }

// Close releases the engine handle if this Predictor owns it. Safe to call
// more than once.
func (p *Predictor) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.owned && p.handle != 0 {
		err := p.eng.BoosterFree(p.handle)
		p.handle = 0
		return err
	}
	p.handle = 0
	return nil
}

// Predict scores a data source and returns one row of outputs per input
// row: a single column for single-output models, one column per class for
// multi-class models.
func (p *Predictor) Predict(data interface{}, opts *PredictOptions) (*mat.Dense, error) {
	flat, rows, err := p.predictFlat(data, opts)
	if err != nil {
		return nil, err
	}
	return reshapePrediction(flat, rows)
}

// PredictLeaf returns, per input row, the index of the leaf the row falls
// into in every tree.
func (p *Predictor) PredictLeaf(data interface{}, opts *PredictOptions) ([][]int32, error) {
	flat, rows, err := p.predictRaw(data, opts, engine.PredictLeafIndex)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, nil
	}
	if len(flat)%rows != 0 {
		return nil, lgberrors.NewShapeError("predict leaf", rows, len(flat),
			"flat result length is not a multiple of the row count")
	}
	perRow := len(flat) / rows
	out := make([][]int32, rows)
	for r := 0; r < rows; r++ {
		row := make([]int32, perRow)
		for c := 0; c < perRow; c++ {
			row[c] = int32(flat[r*perRow+c])
		}
		out[r] = row
	}
	return out, nil
}

// predictFlat returns the flat row-major scores and the input row count.
func (p *Predictor) predictFlat(data interface{}, opts *PredictOptions) ([]float64, int, error) {
	ptype := engine.PredictNormal
	if opts != nil && opts.RawScore {
		ptype = engine.PredictRawScore
	}
	return p.predictRaw(data, opts, ptype)
}

func (p *Predictor) predictRaw(data interface{}, opts *PredictOptions, ptype engine.PredictType) ([]float64, int, error) {
	if p.closed {
		return nil, 0, lgberrors.New("lightgbm: predictor is closed")
	}
	if opts == nil {
		opts = &PredictOptions{}
	}
	numIter := p.clampIterations(opts.NumIteration)

	src, err := resolveSource(data)
	if err != nil {
		return nil, 0, err
	}
	switch s := src.(type) {
	case fileSource:
		return p.predictFile(s.path, opts.DataHasHeader, ptype, numIter)
	case denseSource:
		buf, rows, cols := flattenMatrix(s.m)
		out, err := p.allocResult(rows, ptype, numIter)
		if err != nil {
			return nil, 0, err
		}
		n, err := p.eng.BoosterPredictForMat(p.handle, buf, rows, cols, true, ptype, numIter, out)
		return p.checkResult(out, n, rows, err)
	case sparseRowSource:
		rowPtr, err := intBuffer("row pointers", s.s.RowPtr)
		if err != nil {
			return nil, 0, err
		}
		values, err := floatBuffer("values", s.s.Values)
		if err != nil {
			return nil, 0, err
		}
		rows := s.s.Rows()
		out, err := p.allocResult(rows, ptype, numIter)
		if err != nil {
			return nil, 0, err
		}
		n, err := p.eng.BoosterPredictForCSR(p.handle, rowPtr, s.s.ColIdx, values, s.s.NumCols, ptype, numIter, out)
		return p.checkResult(out, n, rows, err)
	case sparseColSource:
		colPtr, err := intBuffer("column pointers", s.s.ColPtr)
		if err != nil {
			return nil, 0, err
		}
		values, err := floatBuffer("values", s.s.Values)
		if err != nil {
			return nil, 0, err
		}
		rows := s.s.NumRows
		out, err := p.allocResult(rows, ptype, numIter)
		if err != nil {
			return nil, 0, err
		}
		n, err := p.eng.BoosterPredictForCSC(p.handle, colPtr, s.s.RowIdx, values, s.s.NumRows, ptype, numIter, out)
		return p.checkResult(out, n, rows, err)
	default:
		return nil, 0, lgberrors.NewTypeKindError("predict", "matrix, sparse data or file path", src.kind())
	}
}

// clampIterations normalizes the requested iteration limit: out-of-range
// requests fall back to the full model.
func (p *Predictor) clampIterations(n int) int {
	if n <= 0 || n > p.numTotalIteration {
		return p.numTotalIteration
	}
	return n
}

func (p *Predictor) allocResult(rows int, ptype engine.PredictType, numIter int) ([]float64, error) {
	n, err := p.eng.BoosterCalcNumPredict(p.handle, rows, ptype, numIter)
	if err != nil {
		return nil, err
	}
	return make([]float64, n), nil
}

func (p *Predictor) checkResult(out []float64, n, rows int, err error) ([]float64, int, error) {
	if err != nil {
		return nil, 0, err
	}
	if n != len(out) {
		return nil, 0, lgberrors.NewShapeError("predict", len(out), n,
			"engine wrote fewer values than the declared result length")
	}
	return out, rows, nil
}

// predictFile scores an on-disk data file through a temporary result file,
// which is removed on every path.
func (p *Predictor) predictFile(dataPath string, hasHeader bool, ptype engine.PredictType, numIter int) ([]float64, int, error) {
	tmp, err := os.CreateTemp("", "lightgbm_predict_*.tsv")
	if err != nil {
		return nil, 0, lgberrors.Wrap(err, "creating prediction result file")
	}
	resultPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(resultPath)
		return nil, 0, lgberrors.Wrap(err, "creating prediction result file")
	}
	defer func() {
		if rmErr := os.Remove(resultPath); rmErr != nil && !os.IsNotExist(rmErr) {
			p.log.Warn("removing prediction result file", log.PathKey, resultPath)
		}
	}()

	if err := p.eng.BoosterPredictForFile(p.handle, dataPath, hasHeader, ptype, numIter, resultPath); err != nil {
		return nil, 0, err
	}
	return readPredictionFile(resultPath)
}

// readPredictionFile parses tab-separated prediction output, one input row
// per line, into a flat row-major slice.
func readPredictionFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, lgberrors.Wrap(err, "reading prediction result file")
	}
	defer f.Close()

	var flat []float64
	rows := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		for _, tok := range strings.Split(line, "\t") {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, 0, lgberrors.Wrapf(err, "parsing prediction result %q", tok)
			}
			flat = append(flat, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, 0, lgberrors.Wrap(err, "reading prediction result file")
	}
	return flat, rows, nil
}

// reshapePrediction folds a flat row-major result into a rows x perRow
// matrix.
func reshapePrediction(flat []float64, rows int) (*mat.Dense, error) {
	if rows == 0 {
		return &mat.Dense{}, nil
	}
	if len(flat)%rows != 0 {
		return nil, lgberrors.NewShapeError("predict", rows, len(flat),
			"flat result length is not a multiple of the row count")
	}
	return mat.NewDense(rows, len(flat)/rows, flat), nil
}
