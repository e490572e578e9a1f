package config

import "gopkg.in/yaml.v3"

// MarshalYAML renders durations as strings so the output can be fed back
// through Load.
func (c Config) MarshalYAML() (any, error) {
	type plain Config
	return struct {
		plain          `yaml:",inline"`
		MaxWait        string `yaml:"max_wait"`
		RequestTimeout string `yaml:"request_timeout"`
	}{plain(c), c.MaxWait.String(), c.RequestTimeout.String()}, nil
}

// YAML returns the effective configuration as a YAML document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
