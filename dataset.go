package lightgbm

import (
	"sort"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// DefaultMaxBin is the default number of discrete bins per feature.
const DefaultMaxBin = 255

// Dataset binds a data source and its auxiliary columns (label, weight,
// group sizes, init score) to an engine-side dataset handle.
//
// A Dataset is a two-state value: until Construct is called it is only a
// host-side description and every descriptive setter simply records its
// argument. Construct builds the engine handle; from then on setters push
// through to the engine, and mutations that would change binning
// (categorical features, reference, continuation predictor) force the
// handle to be rebuilt — which is rejected once the raw data has been
// discarded.
//
// Validation datasets built with CreateValid, and subsets built with
// Subset, inherit this dataset's binning boundaries instead of deriving
// their own, so that features are binned identically across the training
// set and everything evaluated against it.
type Dataset struct {
	eng    engine.API
	handle engine.DatasetHandle

	data          interface{}
	label         interface{}
	weight        interface{}
	group         interface{}
	initScore     interface{}
	maxBin        int
	reference     *Dataset
	predictor     *Predictor
	featureNames  []string
	categorical   []int
	params        Params
	freeRawData   bool
	usedIndices   []int32
	dataHasHeader bool
	closed        bool

	log log.Logger
}

// DatasetOption configures a Dataset before construction.
type DatasetOption func(*Dataset)

// WithMaxBin sets the maximum number of discrete bins per feature.
func WithMaxBin(n int) DatasetOption {
	return func(d *Dataset) { d.maxBin = n }
}

// WithWeight attaches per-row weights.
func WithWeight(w interface{}) DatasetOption {
	return func(d *Dataset) { d.weight = w }
}

// WithGroup attaches group/query sizes for ranking tasks.
func WithGroup(g interface{}) DatasetOption {
	return func(d *Dataset) { d.group = g }
}

// WithFeatureNames names the feature columns.
func WithFeatureNames(names ...string) DatasetOption {
	return func(d *Dataset) { d.featureNames = names }
}

// WithCategoricalFeatures marks feature columns, by index, as categorical.
func WithCategoricalFeatures(indices ...int) DatasetOption {
	return func(d *Dataset) { d.categorical = indices }
}

// WithDatasetParams attaches extra engine parameters.
func WithDatasetParams(p Params) DatasetOption {
	return func(d *Dataset) { d.params = p.Copy() }
}

// WithKeepRawData keeps the raw data source alive after construction. By
// default it is dropped once the engine handle exists, which rejects later
// mutations that would need a rebuild.
func WithKeepRawData() DatasetOption {
	return func(d *Dataset) { d.freeRawData = false }
}

// NewDataset describes a dataset over a data source: a mat.Matrix, a
// *SparseRow, a *SparseColumn, or a file path (FilePath or string). The
// engine handle is built lazily on first use. label may be nil only for
// file sources that embed their own label column; a constructed dataset
// without a label is an error.
func NewDataset(data, label interface{}, opts ...DatasetOption) *Dataset {
	d := &Dataset{
		data:        data,
		label:       label,
		maxBin:      DefaultMaxBin,
		freeRawData: true,
		log:         log.GetLogger().With(log.ComponentKey, "dataset"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateValid describes a validation dataset aligned with d: it references
// d for binning and inherits its max-bin setting and continuation
// predictor.
func (d *Dataset) CreateValid(data, label interface{}, opts ...DatasetOption) *Dataset {
	v := NewDataset(data, label, opts...)
	v.maxBin = d.maxBin
	v.reference = d
	v.predictor = d.predictor
	return v
}

// Subset describes a row subset of d, built by index selection against d's
// constructed handle rather than by fresh construction, so binning is
// inherited exactly. params may be nil.
func (d *Dataset) Subset(indices []int, params Params) *Dataset {
	idx := make([]int32, len(indices))
	for i, n := range indices {
		idx[i] = int32(n)
	}
	s := NewDataset(nil, nil)
	s.reference = d
	s.usedIndices = idx
	s.maxBin = d.maxBin
	s.predictor = d.predictor
	s.featureNames = d.featureNames
	s.categorical = d.categorical
	if params != nil {
		s.params = params.Copy()
	}
	return s
}

// Constructed reports whether the engine handle exists.
func (d *Dataset) Constructed() bool { return d.handle != 0 }

// Construct builds the engine handle if it does not exist yet. It is called
// implicitly by every operation that needs the handle.
func (d *Dataset) Construct() error {
	if d.handle != 0 {
		return nil
	}
	if d.closed {
		return lgberrors.New("lightgbm: dataset is closed")
	}
	eng, err := requireEngine()
	if err != nil {
		return err
	}
	d.eng = eng

	if d.reference != nil {
		if err := d.reference.Construct(); err != nil {
			return lgberrors.Wrap(err, "constructing reference dataset")
		}
		if d.usedIndices != nil {
			return d.constructSubset()
		}
		return d.construct(d.reference.handle)
	}
	return d.construct(0)
}

func (d *Dataset) constructSubset() error {
	paramsStr, err := serializeParams(d.params)
	if err != nil {
		return err
	}
	h, err := d.eng.DatasetGetSubset(d.reference.handle, d.usedIndices, paramsStr)
	if err != nil {
		return err
	}
	d.handle = h
	label, err := d.getField(engine.FieldLabel)
	if err != nil {
		d.freeHandle()
		return err
	}
	if label.Len() == 0 {
		d.freeHandle()
		return lgberrors.NewMissingLabelError("subset")
	}
	return nil
}

func (d *Dataset) construct(ref engine.DatasetHandle) error {
	src, err := resolveSource(d.data)
	if err != nil {
		return err
	}

	params := d.params.Copy()
	params["max_bin"] = d.maxBin
	if len(d.categorical) > 0 {
		cats := append([]int(nil), d.categorical...)
		sort.Ints(cats)
		params["categorical_column"] = cats
	}
	paramsStr, err := serializeParams(params)
	if err != nil {
		return err
	}

	switch s := src.(type) {
	case fileSource:
		d.dataHasHeader = paramsTruthy(params, "has_header") || paramsTruthy(params, "header")
		d.handle, err = d.eng.DatasetCreateFromFile(s.path, paramsStr, ref)
	case denseSource:
		buf, rows, cols := flattenMatrix(s.m)
		d.handle, err = d.eng.DatasetCreateFromMat(buf, rows, cols, true, paramsStr, ref)
	case sparseRowSource:
		err = d.constructCSR(s.s, paramsStr, ref)
	case sparseColSource:
		err = d.constructCSC(s.s, paramsStr, ref)
	}
	if err != nil {
		return err
	}

	if err := d.finishConstruct(src); err != nil {
		d.freeHandle()
		return err
	}
	if rows, rerr := d.eng.DatasetNumRows(d.handle); rerr == nil {
		cols, _ := d.eng.DatasetNumFeatures(d.handle)
		d.log.Debug("dataset constructed", log.RowsKey, rows, log.FeaturesKey, cols)
	}
	if d.freeRawData {
		d.data = nil
	}
	return nil
}

func (d *Dataset) constructCSR(s *SparseRow, paramsStr string, ref engine.DatasetHandle) error {
	rowPtr, err := intBuffer("row pointers", s.RowPtr)
	if err != nil {
		return err
	}
	values, err := floatBuffer("values", s.Values)
	if err != nil {
		return err
	}
	d.handle, err = d.eng.DatasetCreateFromCSR(rowPtr, s.ColIdx, values, s.NumCols, paramsStr, ref)
	return err
}

func (d *Dataset) constructCSC(s *SparseColumn, paramsStr string, ref engine.DatasetHandle) error {
	colPtr, err := intBuffer("column pointers", s.ColPtr)
	if err != nil {
		return err
	}
	values, err := floatBuffer("values", s.Values)
	if err != nil {
		return err
	}
	d.handle, err = d.eng.DatasetCreateFromCSC(colPtr, s.RowIdx, values, s.NumRows, paramsStr, ref)
	return err
}

// finishConstruct installs auxiliary fields on the fresh handle and runs
// the continued-training init-score injection.
func (d *Dataset) finishConstruct(src dataSource) error {
	if d.label != nil {
		if err := d.setField(engine.FieldLabel, d.label); err != nil {
			return err
		}
	}
	label, err := d.getField(engine.FieldLabel)
	if err != nil {
		return err
	}
	if label.Len() == 0 {
		return lgberrors.NewMissingLabelError(src.kind())
	}
	if d.weight != nil {
		if err := d.setField(engine.FieldWeight, d.weight); err != nil {
			return err
		}
	}
	if d.group != nil {
		if err := d.setField(engine.FieldGroup, d.group); err != nil {
			return err
		}
	}
	if d.initScore != nil {
		if err := d.setField(engine.FieldInitScore, d.initScore); err != nil {
			return err
		}
	}
	if d.predictor != nil {
		if err := d.injectInitScore(); err != nil {
			return err
		}
	}
	if d.featureNames != nil {
		if err := d.pushFeatureNames(); err != nil {
			return err
		}
	}
	return nil
}

// injectInitScore warm-starts continued training: raw scores of the
// continuation predictor over this dataset's own source become the
// init_score field.
//
// The predictor emits scores row-major (row, then class) while the
// init_score field is class-major (class, then row), so multi-class scores
// are transposed as init[c*rows+r] = raw[r*classes+c]. Getting this
// indexing backward corrupts continued training silently, which is why the
// round trip is pinned down in tests.
func (d *Dataset) injectInitScore() error {
	raw, _, err := d.predictor.predictFlat(d.data, &PredictOptions{
		RawScore:      true,
		DataHasHeader: d.dataHasHeader,
	})
	if err != nil {
		return lgberrors.Wrap(err, "predicting init score for continued training")
	}
	numClass := d.predictor.NumClasses()
	score := make([]float32, len(raw))
	if numClass > 1 {
		rows, err := d.eng.DatasetNumRows(d.handle)
		if err != nil {
			return err
		}
		if rows*numClass != len(raw) {
			return lgberrors.NewShapeError("init score", rows*numClass, len(raw),
				"raw score length does not cover rows x classes")
		}
		for r := 0; r < rows; r++ {
			for c := 0; c < numClass; c++ {
				score[c*rows+r] = float32(raw[r*numClass+c])
			}
		}
	} else {
		for i, v := range raw {
			score[i] = float32(v)
		}
	}
	return d.setField(engine.FieldInitScore, score)
}

func (d *Dataset) pushFeatureNames() error {
	n, err := d.eng.DatasetNumFeatures(d.handle)
	if err != nil {
		return err
	}
	if len(d.featureNames) != n {
		return lgberrors.NewShapeError("set feature names", n, len(d.featureNames),
			"feature name count does not match feature count")
	}
	return d.eng.DatasetSetFeatureNames(d.handle, d.featureNames)
}

// setField marshals v to the field's declared element kind and installs it.
// A nil v clears the field on the engine side.
func (d *Dataset) setField(field string, v interface{}) error {
	kind, ok := engine.FieldKind(field)
	if !ok {
		return lgberrors.NewConfigError(field, "unknown dataset field", v)
	}
	if v == nil {
		return d.eng.DatasetSetField(d.handle, field, engine.Buffer{})
	}
	buf, err := toBuffer(field, v, kind)
	if err != nil {
		return err
	}
	return d.eng.DatasetSetField(d.handle, field, buf)
}

// getField reads a field back from the engine and verifies the returned
// element kind against the field's declared kind. A kind mismatch is a
// contract violation in the engine binding, not a user error, and is
// reported as a fatal EngineCallError.
func (d *Dataset) getField(field string) (engine.Buffer, error) {
	kind, ok := engine.FieldKind(field)
	if !ok {
		return engine.Buffer{}, lgberrors.NewConfigError(field, "unknown dataset field", nil)
	}
	buf, err := d.eng.DatasetGetField(d.handle, field)
	if err != nil {
		return engine.Buffer{}, err
	}
	if buf.Len() > 0 && buf.DType() != kind {
		return engine.Buffer{}, lgberrors.NewEngineCallError("DatasetGetField",
			"field "+field+" returned kind "+buf.DType().String()+", declared kind is "+kind.String())
	}
	return buf, nil
}

// SetLabel sets the per-row label.
func (d *Dataset) SetLabel(label interface{}) error {
	d.label = label
	if d.handle != 0 {
		return d.setField(engine.FieldLabel, label)
	}
	return nil
}

// SetWeight sets per-row weights. nil clears them.
func (d *Dataset) SetWeight(weight interface{}) error {
	d.weight = weight
	if d.handle != 0 {
		return d.setField(engine.FieldWeight, weight)
	}
	return nil
}

// SetInitScore sets the additive init score. nil clears it.
func (d *Dataset) SetInitScore(score interface{}) error {
	d.initScore = score
	if d.handle != 0 {
		return d.setField(engine.FieldInitScore, score)
	}
	return nil
}

// SetGroup sets group/query sizes. nil clears them.
func (d *Dataset) SetGroup(group interface{}) error {
	d.group = group
	if d.handle != 0 {
		return d.setField(engine.FieldGroup, group)
	}
	return nil
}

// GetLabel returns the label column.
func (d *Dataset) GetLabel() ([]float32, error) {
	if d.label == nil && d.handle != 0 {
		buf, err := d.getField(engine.FieldLabel)
		if err != nil {
			return nil, err
		}
		return buf.Float32s(), nil
	}
	if d.label == nil {
		return nil, nil
	}
	return toFloat32s(engine.FieldLabel, d.label)
}

// GetWeight returns per-row weights, or nil when unset.
func (d *Dataset) GetWeight() ([]float32, error) {
	if d.weight == nil && d.handle != 0 {
		buf, err := d.getField(engine.FieldWeight)
		if err != nil {
			return nil, err
		}
		return buf.Float32s(), nil
	}
	if d.weight == nil {
		return nil, nil
	}
	return toFloat32s(engine.FieldWeight, d.weight)
}

// GetInitScore returns the init score, or nil when unset.
func (d *Dataset) GetInitScore() ([]float32, error) {
	if d.initScore == nil && d.handle != 0 {
		buf, err := d.getField(engine.FieldInitScore)
		if err != nil {
			return nil, err
		}
		return buf.Float32s(), nil
	}
	if d.initScore == nil {
		return nil, nil
	}
	return toFloat32s(engine.FieldInitScore, d.initScore)
}

// GetGroup returns the group sizes. The engine stores groups as prefix
// boundaries (boundaries[i] is the row offset of group i), so the sizes
// are recovered as successive differences.
func (d *Dataset) GetGroup() ([]int, error) {
	if d.group == nil && d.handle != 0 {
		buf, err := d.getField(engine.FieldGroup)
		if err != nil {
			return nil, err
		}
		boundaries := buf.Int32s()
		if len(boundaries) == 0 {
			return nil, nil
		}
		sizes := make([]int, len(boundaries)-1)
		for i := 0; i < len(boundaries)-1; i++ {
			sizes[i] = int(boundaries[i+1] - boundaries[i])
		}
		return sizes, nil
	}
	if d.group == nil {
		return nil, nil
	}
	raw, err := toInt32s(engine.FieldGroup, d.group)
	if err != nil {
		return nil, err
	}
	sizes := make([]int, len(raw))
	for i, v := range raw {
		sizes[i] = int(v)
	}
	return sizes, nil
}

// NumRows returns the row count. The dataset must be constructed.
func (d *Dataset) NumRows() (int, error) {
	if d.handle == 0 {
		return 0, lgberrors.New("lightgbm: NumRows requires a constructed dataset; call Construct first")
	}
	return d.eng.DatasetNumRows(d.handle)
}

// NumFeatures returns the feature count. The dataset must be constructed.
func (d *Dataset) NumFeatures() (int, error) {
	if d.handle == 0 {
		return 0, lgberrors.New("lightgbm: NumFeatures requires a constructed dataset; call Construct first")
	}
	return d.eng.DatasetNumFeatures(d.handle)
}

// SetFeatureNames names the feature columns; pushed through immediately
// when constructed.
func (d *Dataset) SetFeatureNames(names []string) error {
	d.featureNames = names
	if d.handle != 0 {
		return d.pushFeatureNames()
	}
	return nil
}

// SetCategoricalFeatures changes which columns are categorical. Since this
// changes binning it forces reconstruction, which is rejected once the raw
// data has been discarded.
func (d *Dataset) SetCategoricalFeatures(indices ...int) error {
	if intsEqual(d.categorical, indices) {
		return nil
	}
	if err := d.invalidateHandle("categorical features"); err != nil {
		return err
	}
	d.categorical = indices
	return nil
}

// SetReference re-points this dataset at another binning template,
// adopting its categorical features, feature names and continuation
// predictor. Forces reconstruction.
func (d *Dataset) SetReference(ref *Dataset) error {
	if err := d.SetCategoricalFeatures(ref.categorical...); err != nil {
		return err
	}
	if err := d.SetFeatureNames(ref.featureNames); err != nil {
		return err
	}
	if err := d.setPredictor(ref.predictor); err != nil {
		return err
	}
	if d.reference == ref {
		return nil
	}
	if err := d.invalidateHandle("reference"); err != nil {
		return err
	}
	d.reference = ref
	return nil
}

// setPredictor switches the continuation predictor. Forces reconstruction
// so the init score is recomputed.
func (d *Dataset) setPredictor(p *Predictor) error {
	if p == d.predictor {
		return nil
	}
	if err := d.invalidateHandle("continuation predictor"); err != nil {
		return err
	}
	d.predictor = p
	return nil
}

// invalidateHandle drops the engine handle so the next use reconstructs.
// Once raw data has been discarded reconstruction is impossible and the
// mutation is rejected.
func (d *Dataset) invalidateHandle(what string) error {
	if d.handle == 0 {
		return nil
	}
	if d.data == nil && d.usedIndices == nil {
		return lgberrors.Newf(
			"lightgbm: cannot change %s after raw data was discarded; construct with WithKeepRawData to allow this", what)
	}
	d.freeHandle()
	return nil
}

// SaveBinary writes the constructed dataset to an engine binary file.
func (d *Dataset) SaveBinary(path string) error {
	if err := d.Construct(); err != nil {
		return err
	}
	return d.eng.DatasetSaveBinary(d.handle, path)
}

func (d *Dataset) freeHandle() {
	if d.handle != 0 {
		if err := d.eng.DatasetFree(d.handle); err != nil {
			d.log.Error("freeing dataset handle", err)
		}
		d.handle = 0
	}
}

// Close releases the engine handle. The Dataset owns its handle
// exclusively; Close frees it exactly once and further use fails.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.freeHandle()
	return nil
}

func paramsTruthy(p Params, key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "True"
	default:
		return false
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
