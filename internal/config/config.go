package config

import "time"

// Config holds runtime parameters for the service. Keys use snake_case and
// nest with "." (log.level, store.dsn).
type Config struct {
	Addr           string        `koanf:"addr" yaml:"addr"`
	GRPCAddr       string        `koanf:"grpc_addr" yaml:"grpc_addr"`
	ModelPath      string        `koanf:"model_path" yaml:"model_path"`
	ModelID        string        `koanf:"model_id" yaml:"model_id"`
	ModelsDir      string        `koanf:"models_dir" yaml:"models_dir"`
	WatchModels    bool          `koanf:"watch_models" yaml:"watch_models"`
	Threads        int           `koanf:"threads" yaml:"threads"`
	MaxQueueDepth  int           `koanf:"max_queue_depth" yaml:"max_queue_depth"`
	MaxInflight    int           `koanf:"max_inflight" yaml:"max_inflight"`
	MaxWait        time.Duration `koanf:"max_wait" yaml:"-"`
	RequestTimeout time.Duration `koanf:"request_timeout" yaml:"-"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes" yaml:"max_body_bytes"`
	MaxNewTokens   int           `koanf:"max_new_tokens" yaml:"max_new_tokens"`

	Log       LogConfig       `koanf:"log" yaml:"log"`
	CORS      CORSConfig      `koanf:"cors" yaml:"cors"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Auth      AuthConfig      `koanf:"auth" yaml:"auth"`
	Reference ReferenceConfig `koanf:"reference" yaml:"reference"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

type CORSConfig struct {
	Enabled bool     `koanf:"enabled" yaml:"enabled"`
	Origins []string `koanf:"origins" yaml:"origins"`
}

// StoreConfig selects the run store. An empty driver disables persistence.
type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver"`
	DSN    string `koanf:"dsn" yaml:"dsn"`
}

// AuthConfig holds the bcrypt hash of the API key. Empty disables auth.
type AuthConfig struct {
	APIKeyHash string `koanf:"api_key_hash" yaml:"api_key_hash"`
}

// ReferenceConfig enables the llama.cpp baseline generator.
type ReferenceConfig struct {
	Enabled     bool `koanf:"enabled" yaml:"enabled"`
	ContextSize int  `koanf:"context_size" yaml:"context_size"`
}

// Defaults returns the lowest-precedence layer.
func Defaults() map[string]any {
	return map[string]any{
		"addr":                   ":5000",
		"grpc_addr":              "",
		"model_path":             "",
		"model_id":               "meta-llama/Llama-3.2-1B",
		"models_dir":             "~/models/llm",
		"watch_models":           true,
		"threads":                0,
		"max_queue_depth":        32,
		"max_inflight":           1,
		"max_wait":               "30s",
		"request_timeout":        "120s",
		"max_body_bytes":         1 << 20,
		"max_new_tokens":         512,
		"log.level":              "info",
		"log.format":             "console",
		"cors.enabled":           true,
		"cors.origins":           []string{"*"},
		"store.driver":           "",
		"store.dsn":              "",
		"auth.api_key_hash":      "",
		"reference.enabled":      false,
		"reference.context_size": 2048,
	}
}
