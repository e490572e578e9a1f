package config

import (
	toml "github.com/pelletier/go-toml/v2"
)

// tomlParser satisfies koanf.Parser over go-toml.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]any) ([]byte, error) { return toml.Marshal(m) }
