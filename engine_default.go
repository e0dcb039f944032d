package lightgbm

import (
	"sync"

	"github.com/meggersntexasv8/LightGBM/engine"
	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

var (
	engineMu      sync.RWMutex
	processEngine engine.API
)

// SetEngine installs the process-wide engine implementation used by all
// subsequently created Datasets, Boosters and Predictors. The cgo binding
// in engine/capi registers itself here when the module is built with the
// capi tag; tests install engine/enginetest.
func SetEngine(e engine.API) {
	engineMu.Lock()
	defer engineMu.Unlock()
	processEngine = e
}

// CurrentEngine returns the installed engine implementation, or nil.
func CurrentEngine() engine.API {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return processEngine
}

func requireEngine() (engine.API, error) {
	e := CurrentEngine()
	if e == nil {
		return nil, lgberrors.New("lightgbm: no engine installed; build with -tags capi or call SetEngine")
	}
	return e, nil
}
