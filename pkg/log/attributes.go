package log

// Standard attribute keys used across the control layer. Using fixed keys
// keeps training logs filterable (per dataset, per iteration, per engine
// call) without grepping free-form text.
const (
	// ComponentKey identifies the emitting component: "dataset", "booster",
	// "predictor", "train", "cv".
	ComponentKey = "component"

	// IterationKey is the zero-based boosting iteration.
	IterationKey = "iteration"

	// BestIterationKey is the iteration chosen by early stopping.
	BestIterationKey = "best_iteration"

	// DatasetKey is the display name of a dataset ("training", "valid_0", ...).
	DatasetKey = "dataset"

	// RowsKey and FeaturesKey describe a dataset's dimensions.
	RowsKey     = "data.rows"
	FeaturesKey = "data.features"

	// MetricKey names an evaluation metric.
	MetricKey = "metric"

	// ValueKey is a metric value.
	ValueKey = "value"

	// EngineCallKey names the engine entry point involved in a failure.
	EngineCallKey = "engine.call"

	// FoldsKey is the fold count in cross-validation.
	FoldsKey = "cv.folds"

	// PathKey is a file path involved in the operation.
	PathKey = "path"
)
