package lightgbm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

// Params is a free-form parameter set passed through to the engine as a
// serialized string. Keys and value meanings are owned by the engine; this
// layer only inspects a handful of keys (max_bin, metric, verbose).
type Params map[string]interface{}

// Copy returns a shallow copy, never nil.
func (p Params) Copy() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// serializeParams encodes a parameter set in the engine's
// "key1=v key2=a,b,c" form. Keys are emitted in sorted order so the same
// parameter set always produces the same string. Unsupported value types
// are a ConfigError.
func serializeParams(p Params) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		s, err := paramValueString(k, p[k])
		if err != nil {
			return "", err
		}
		pairs = append(pairs, k+"="+s)
	}
	return strings.Join(pairs, " "), nil
}

func paramValueString(key string, v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case []string:
		return strings.Join(val, ","), nil
	case []int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ","), nil
	case []float64:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", lgberrors.NewConfigError(key, "unsupported parameter value type "+fmt.Sprintf("%T", v), v)
	}
}
