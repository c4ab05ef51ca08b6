package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON rewrites a .yaml/.yml config file as JSON bytes. Hotbot keeps
// a single strict decode path (DisallowUnknownFields over JSON), so YAML
// input is converted up front instead of growing a second decoder with its
// own unknown-key rules. Non-YAML extensions pass through untouched.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("config %s: yaml parse: %w", filepath.Base(path), err)
	}

	j, err := json.Marshal(stringifyKeys(v))
	if err != nil {
		return nil, fmt.Errorf("config %s: yaml to json: %w", filepath.Base(path), err)
	}
	return j, nil
}

// stringifyKeys walks the decoded YAML value and forces every map key to a
// string. YAML permits non-string keys (and older decoders produce
// map[any]any), which json.Marshal rejects; the plugins section in particular
// is a map keyed by plugin name and must survive the round trip.
func stringifyKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range x {
			x[k] = stringifyKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringifyKeys(x[i])
		}
		return x
	default:
		return in
	}
}
