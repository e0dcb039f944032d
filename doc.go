// Package lightgbm is a Go control layer for the LightGBM gradient-boosting
// engine.
//
// The boosting algorithm itself (binning, split search, leaf growth) runs in
// an external engine behind the narrow handle-based contract defined in the
// engine subpackage. This package owns everything on the host side of that
// boundary: columnar data marshaling, lazy reference-aligned Dataset
// construction, the Booster training state machine with its per-iteration
// prediction cache, read-only Predictors for trained models, and the
// training and cross-validation drivers with their callback protocol.
//
// A typical training run:
//
//	train := lightgbm.NewDataset(X, y)
//	valid := train.CreateValid(Xv, yv)
//	bst, err := lightgbm.Train(params, train,
//		lightgbm.WithNumIterations(100),
//		lightgbm.WithValidSet(valid, "valid_0"),
//		lightgbm.WithEarlyStopping(10),
//	)
//
// The engine implementation is process-wide: the cgo binding in engine/capi
// registers itself when built with the capi tag, and tests install the
// deterministic in-memory engine from engine/enginetest via SetEngine.
package lightgbm
