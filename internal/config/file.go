package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads a TOML config file and splits it into namespace tables.
// Top-level scalar keys belong to the core namespace; each top-level table
// is the namespace of one processor:
//
//	workers = 4
//	stable-seconds = 1.5
//
//	[image]
//	jpeg_quality = 90
//
// A missing path is an error; callers only pass paths the user asked for.
func LoadFile(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parseFile(path, data)
}

func parseFile(source string, data []byte) (map[string]map[string]any, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", source, err)
	}

	out := map[string]map[string]any{CoreNamespace: {}}
	for key, value := range raw {
		if table, ok := value.(map[string]any); ok {
			ns := CanonicalKey(key)
			if existing, ok := out[ns]; ok {
				for k, v := range table {
					existing[k] = v
				}
			} else {
				out[ns] = table
			}
			continue
		}
		out[CoreNamespace][key] = value
	}
	return out, nil
}
