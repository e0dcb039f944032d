//go:build capi

package lightgbm

import "github.com/meggersntexasv8/LightGBM/engine/capi"

// Building with the capi tag installs the native engine automatically.
func init() {
	SetEngine(capi.New())
}
