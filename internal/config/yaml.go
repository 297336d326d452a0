package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts a YAML config file to JSON bytes so one
// strict JSON decoder (DisallowUnknownFields) serves both formats.
// Files without a YAML extension pass through untouched.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(stringifyKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return j, nil
}

// stringifyKeys rewrites YAML maps so every key is a string, which
// json.Marshal requires.
func stringifyKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return m
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
	}
	return in
}
