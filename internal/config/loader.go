package config

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"patchscope/internal/common/fsutil"
)

// EnvPrefix prefixes environment overrides. A double underscore nests:
// PATCHSCOPE_LOG__LEVEL sets log.level.
const EnvPrefix = "PATCHSCOPE_"

// flagKeys maps flag names whose config key is nested.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"cors-origins": "cors.origins",
	"store-driver": "store.driver",
	"store-dsn":    "store.dsn",
	"reference":    "reference.enabled",
}

// Load layers defaults, the config file (when path is set), PATCHSCOPE_*
// environment variables and explicitly set flags, in increasing precedence.
// Supported file extensions: .yaml/.yml, .json, .toml.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	var cfg Config
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return cfg, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return cfg, fmt.Errorf("load flags: %w", err)
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	var err error
	if cfg.ModelsDir, err = fsutil.ExpandHome(cfg.ModelsDir); err != nil {
		return cfg, err
	}
	if cfg.ModelPath, err = fsutil.ExpandHome(cfg.ModelPath); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envValue maps PATCHSCOPE_CORS__ORIGINS=a,b to cors.origins=[a b].
func envValue(name, value string) (string, any) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
	if key == "cors.origins" {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return tomlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
}
