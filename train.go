package lightgbm

import (
	"github.com/cockroachdb/errors"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// DefaultNumIterations is the boosting round count used when no option or
// parameter overrides it.
const DefaultNumIterations = 100

type trainConfig struct {
	numIterations       int
	validSets           []*Dataset
	validNames          []string
	trainDataName       string
	evalTraining        bool
	fobj                ObjectiveFunc
	fevals              []EvalFunc
	initModelPath       string
	callbacks           []Callback
	earlyStoppingRounds int
	firstMetricOnly     bool
	evalHistory         map[string]map[string][]float64
	verbosePeriod       int
}

// TrainOption configures a Train or CV run.
type TrainOption func(*trainConfig)

// WithNumIterations sets the number of boosting rounds.
func WithNumIterations(n int) TrainOption {
	return func(c *trainConfig) { c.numIterations = n }
}

// WithValidSet registers a validation set, evaluated every iteration under
// the given name. May be repeated.
func WithValidSet(data *Dataset, name string) TrainOption {
	return func(c *trainConfig) {
		c.validSets = append(c.validSets, data)
		c.validNames = append(c.validNames, name)
	}
}

// WithTrainDataName names the training set in evaluation output.
func WithTrainDataName(name string) TrainOption {
	return func(c *trainConfig) { c.trainDataName = name }
}

// WithTrainingMetric also evaluates metrics on the training set each
// iteration.
func WithTrainingMetric() TrainOption {
	return func(c *trainConfig) { c.evalTraining = true }
}

// WithObjective trains with a custom objective instead of the configured
// one.
func WithObjective(fobj ObjectiveFunc) TrainOption {
	return func(c *trainConfig) { c.fobj = fobj }
}

// WithEvalFunc adds a custom evaluation metric. May be repeated.
func WithEvalFunc(feval EvalFunc) TrainOption {
	return func(c *trainConfig) { c.fevals = append(c.fevals, feval) }
}

// WithInitModel continues training from a serialized model: its raw scores
// become the init score of every dataset, and iteration numbering starts
// after its last iteration.
func WithInitModel(path string) TrainOption {
	return func(c *trainConfig) { c.initModelPath = path }
}

// WithCallbacks registers callbacks, run in the given order each
// iteration.
func WithCallbacks(cbs ...Callback) TrainOption {
	return func(c *trainConfig) { c.callbacks = append(c.callbacks, cbs...) }
}

// WithEarlyStopping stops training when no validation metric improves for
// rounds consecutive iterations.
func WithEarlyStopping(rounds int) TrainOption {
	return func(c *trainConfig) { c.earlyStoppingRounds = rounds }
}

// WithFirstMetricOnly restricts early stopping to the first configured
// metric.
func WithFirstMetricOnly() TrainOption {
	return func(c *trainConfig) { c.firstMetricOnly = true }
}

// WithEvalHistory appends every evaluation value to record, keyed by
// dataset name then metric name.
func WithEvalHistory(record map[string]map[string][]float64) TrainOption {
	return func(c *trainConfig) { c.evalHistory = record }
}

// WithVerboseEval logs evaluation results every period iterations.
func WithVerboseEval(period int) TrainOption {
	return func(c *trainConfig) { c.verbosePeriod = period }
}

func newTrainConfig(opts []TrainOption) *trainConfig {
	c := &trainConfig{
		numIterations: DefaultNumIterations,
		trainDataName: "training",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// assembleCallbacks fixes the execution order: user callbacks first, then
// logging and recording, early stopping last so it sees this iteration's
// fully recorded results.
func (c *trainConfig) assembleCallbacks() []Callback {
	cbs := append([]Callback(nil), c.callbacks...)
	if c.verbosePeriod > 0 {
		cbs = append(cbs, PrintEvaluation(c.verbosePeriod))
	}
	if c.evalHistory != nil {
		cbs = append(cbs, RecordEvaluation(c.evalHistory))
	}
	if c.earlyStoppingRounds > 0 {
		cbs = append(cbs, EarlyStopping(c.earlyStoppingRounds, c.firstMetricOnly, c.verbosePeriod > 0))
	}
	return cbs
}

// Train runs the boosting loop over a training dataset and returns the
// trained Booster. The caller owns the returned Booster and must Close it.
//
// Early stopping surfaces as success: when a callback returns an
// *EarlyStopError the loop stops, the best iteration is recorded on the
// Booster, and Train returns it without error.
func Train(params Params, trainSet *Dataset, opts ...TrainOption) (*Booster, error) {
	cfg := newTrainConfig(opts)
	logger := log.GetLogger().With(log.ComponentKey, "train")

	initIteration := 0
	if cfg.initModelPath != "" {
		pred, err := NewPredictorFromFile(cfg.initModelPath)
		if err != nil {
			return nil, err
		}
		defer pred.Close()
		initIteration = pred.NumTotalIterations()
		if err := trainSet.setPredictor(pred); err != nil {
			return nil, err
		}
		for _, v := range cfg.validSets {
			if err := v.setPredictor(pred); err != nil {
				return nil, err
			}
		}
	}

	booster, err := NewBooster(params, trainSet)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = booster.Close()
		}
	}()

	booster.SetTrainDataName(cfg.trainDataName)
	for i, v := range cfg.validSets {
		if err := booster.AddValid(v, cfg.validNames[i]); err != nil {
			return nil, err
		}
	}

	callbacks := cfg.assembleCallbacks()
	endIteration := initIteration + cfg.numIterations

	for iteration := initIteration; iteration < endIteration; iteration++ {
		env := &CallbackEnv{
			Booster:        booster,
			Params:         booster.params,
			Iteration:      iteration,
			BeginIteration: initIteration,
			EndIteration:   endIteration,
		}
		for _, cb := range callbacks {
			if err := cb.BeforeIteration(env); err != nil {
				return nil, err
			}
		}

		finished, err := booster.updateWith(cfg.fobj)
		if err != nil {
			return nil, err
		}

		env.EvalResults, err = evaluateIteration(booster, cfg)
		if err != nil {
			return nil, err
		}

		stopped := false
		for _, cb := range callbacks {
			if err := cb.AfterIteration(env); err != nil {
				var es *EarlyStopError
				if errors.As(err, &es) {
					booster.SetBestIteration(es.BestIteration)
					stopped = true
					break
				}
				return nil, err
			}
		}
		if stopped {
			break
		}
		if finished {
			logger.Info("stopped training because the engine cannot split any further",
				log.IterationKey, iteration+1)
			break
		}
	}

	ok = true
	return booster, nil
}

// evaluateIteration collects this iteration's metric values: training-set
// metrics first when requested, then every validation set.
func evaluateIteration(b *Booster, cfg *trainConfig) ([]EvalResult, error) {
	if !cfg.evalTraining && len(cfg.validSets) == 0 && len(cfg.fevals) == 0 {
		return nil, nil
	}
	var out []EvalResult
	if cfg.evalTraining {
		res, err := b.EvalTrain(cfg.fevals...)
		if err != nil {
			return nil, lgberrors.Wrap(err, "evaluating training set")
		}
		out = append(out, res...)
	}
	if len(cfg.validSets) > 0 {
		res, err := b.EvalValid(cfg.fevals...)
		if err != nil {
			return nil, lgberrors.Wrap(err, "evaluating validation sets")
		}
		out = append(out, res...)
	}
	return out, nil
}
