package lightgbm

import (
	"fmt"
	"math"
	"strings"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
	"github.com/meggersntexasv8/LightGBM/pkg/log"
)

// CallbackEnv is the per-iteration snapshot passed to callbacks. Exactly
// one of Booster (Train) and CVFolds (CV) is set.
type CallbackEnv struct {
	Booster        *Booster
	CVFolds        *CVBooster
	Params         Params
	Iteration      int // zero-based
	BeginIteration int
	EndIteration   int
	// EvalResults holds this iteration's evaluations, in dataset-then-metric
	// order. Empty for before-iteration calls.
	EvalResults []EvalResult
}

// Callback observes or steers training. BeforeIteration runs before the
// boost step of each iteration, AfterIteration after evaluation. Either
// may be a no-op. An error returned from a callback stops training; the
// training drivers treat *EarlyStopError specially and every other error
// as failure.
type Callback interface {
	BeforeIteration(env *CallbackEnv) error
	AfterIteration(env *CallbackEnv) error
}

// CallbackFunc adapts a plain function into an after-iteration Callback.
type CallbackFunc func(env *CallbackEnv) error

// BeforeIteration is a no-op.
func (f CallbackFunc) BeforeIteration(*CallbackEnv) error { return nil }

// AfterIteration calls f.
func (f CallbackFunc) AfterIteration(env *CallbackEnv) error { return f(env) }

// EarlyStopError signals that training should stop with a known best
/// iteration. It is an ordinary error value: callbacks return it, the
// training drivers detect it with errors.As, trim to BestIteration and
// report success. Any other consumer sees it as a plain error.
type EarlyStopError struct {
	// BestIteration counts iterations, so it is one past the zero-based
	// iteration index the best score was seen at.
	BestIteration int
	// BestResults holds the evaluations recorded at the best iteration.
	BestResults []EvalResult
}

func (e *EarlyStopError) Error() string {
	return fmt.Sprintf("lightgbm: early stopping at best iteration %d", e.BestIteration)
}

// PrintEvaluation returns a callback logging evaluation results every
// period iterations. A period below 1 disables it.
func PrintEvaluation(period int) Callback {
	logger := log.GetLogger().With(log.ComponentKey, "train")
	return CallbackFunc(func(env *CallbackEnv) error {
		if period < 1 || len(env.EvalResults) == 0 {
			return nil
		}
		if (env.Iteration+1)%period != 0 {
			return nil
		}
		logger.Info(formatEvalResults(env.EvalResults),
			log.IterationKey, env.Iteration+1)
		return nil
	})
}

// RecordEvaluation returns a callback appending every evaluation value to
// record, keyed by dataset name then metric name.
func RecordEvaluation(record map[string]map[string][]float64) Callback {
	return CallbackFunc(func(env *CallbackEnv) error {
		for _, r := range env.EvalResults {
			byMetric, ok := record[r.DatasetName]
			if !ok {
				byMetric = make(map[string][]float64)
				record[r.DatasetName] = byMetric
			}
			byMetric[r.MetricName] = append(byMetric[r.MetricName], r.Value)
		}
		return nil
	})
}

// resetParameterCallback applies a parameter schedule before each
// iteration.
type resetParameterCallback struct {
	schedule func(iteration int) Params
}

// ResetParameter returns a callback that re-applies schedule(iteration)
// before every iteration. Use it for learning-rate decay and similar
// per-iteration parameter changes.
func ResetParameter(schedule func(iteration int) Params) Callback {
	return &resetParameterCallback{schedule: schedule}
}

// LearningRateSchedule is ResetParameter specialized to the learning rate.
func LearningRateSchedule(rate func(iteration int) float64) Callback {
	return ResetParameter(func(iteration int) Params {
		return Params{"learning_rate": rate(iteration)}
	})
}

func (c *resetParameterCallback) BeforeIteration(env *CallbackEnv) error {
	p := c.schedule(env.Iteration)
	if len(p) == 0 {
		return nil
	}
	if _, ok := p["boosting"]; ok {
		return lgberrors.NewConfigError("boosting", "cannot be changed during training", p["boosting"])
	}
	if env.CVFolds != nil {
		for _, b := range env.CVFolds.Boosters {
			if err := b.ResetParameter(p); err != nil {
				return err
			}
		}
		return nil
	}
	return env.Booster.ResetParameter(p)
}

func (c *resetParameterCallback) AfterIteration(*CallbackEnv) error { return nil }

// earlyStoppingCallback tracks per-metric best scores and returns an
// *EarlyStopError once no tracked metric has improved for stoppingRounds
// iterations.
type earlyStoppingCallback struct {
	stoppingRounds  int
	firstMetricOnly bool
	verbose         bool

	initialized bool
	firstMetric string
	bestScore   []float64
	bestIter    []int
	bestResults [][]EvalResult
	cmp         []func(new, best float64) bool

	log log.Logger
}

// EarlyStopping returns a callback stopping training when no validation
// metric improves for stoppingRounds consecutive iterations. With
// firstMetricOnly only the first configured metric can trigger the stop.
// Training-set evaluations never trigger it.
func EarlyStopping(stoppingRounds int, firstMetricOnly, verbose bool) Callback {
	return &earlyStoppingCallback{
		stoppingRounds:  stoppingRounds,
		firstMetricOnly: firstMetricOnly,
		verbose:         verbose,
		log:             log.GetLogger().With(log.ComponentKey, "early-stopping"),
	}
}

func (c *earlyStoppingCallback) BeforeIteration(*CallbackEnv) error { return nil }

func (c *earlyStoppingCallback) init(env *CallbackEnv) error {
	if env.Booster != nil && env.Booster.NumValidSets() == 0 {
		return lgberrors.New("lightgbm: early stopping requires at least one validation set")
	}
	if len(env.EvalResults) == 0 {
		return lgberrors.New("lightgbm: early stopping requires at least one metric")
	}
	c.firstMetric = env.EvalResults[0].MetricName
	n := len(env.EvalResults)
	c.bestScore = make([]float64, n)
	c.bestIter = make([]int, n)
	c.bestResults = make([][]EvalResult, n)
	c.cmp = make([]func(new, best float64) bool, n)
	for i, r := range env.EvalResults {
		if r.HigherBetter {
			c.bestScore[i] = -inf
			c.cmp[i] = func(new, best float64) bool { return new > best }
		} else {
			c.bestScore[i] = inf
			c.cmp[i] = func(new, best float64) bool { return new < best }
		}
	}
	c.initialized = true
	return nil
}

func (c *earlyStoppingCallback) AfterIteration(env *CallbackEnv) error {
	if !c.initialized {
		if err := c.init(env); err != nil {
			return err
		}
	}
	if len(env.EvalResults) != len(c.bestScore) {
		return lgberrors.NewShapeError("early stopping", len(c.bestScore), len(env.EvalResults),
			"evaluation result count changed between iterations")
	}
	trainName := ""
	if env.Booster != nil {
		trainName = env.Booster.trainDataName
	}
	for i, r := range env.EvalResults {
		if c.cmp[i](r.Value, c.bestScore[i]) {
			c.bestScore[i] = r.Value
			c.bestIter[i] = env.Iteration
			c.bestResults[i] = append([]EvalResult(nil), env.EvalResults...)
			continue
		}
		if r.DatasetName == trainName {
			continue
		}
		if c.firstMetricOnly && r.MetricName != c.firstMetric {
			continue
		}
		lastIteration := env.Iteration == env.EndIteration-1
		if env.Iteration-c.bestIter[i] >= c.stoppingRounds || lastIteration {
			return c.stop(env, i)
		}
	}
	return nil
}

func (c *earlyStoppingCallback) stop(env *CallbackEnv, i int) error {
	best := c.bestIter[i] + 1
	if env.Booster != nil {
		env.Booster.SetBestIteration(best)
	}
	if c.verbose {
		c.log.Info("early stopping, "+formatEvalResults(c.bestResults[i]),
			log.BestIterationKey, best)
	}
	return &EarlyStopError{
		BestIteration: best,
		BestResults:   c.bestResults[i],
	}
}

func formatEvalResults(results []EvalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("%s's %s: %g", r.DatasetName, r.MetricName, r.Value)
	}
	return strings.Join(parts, "  ")
}

var inf = math.Inf(1)
