package config

import (
	"errors"
	"fmt"
	"strings"

	"patchscope/internal/logging"
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Threads < 0 {
		errs = append(errs, errors.New("threads must be >= 0"))
	}
	if c.MaxQueueDepth < 1 {
		errs = append(errs, errors.New("max_queue_depth must be >= 1"))
	}
	if c.MaxInflight < 1 || c.MaxInflight > c.MaxQueueDepth {
		errs = append(errs, fmt.Errorf("max_inflight must be in [1, max_queue_depth=%d]", c.MaxQueueDepth))
	}
	if c.MaxWait <= 0 {
		errs = append(errs, errors.New("max_wait must be positive"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must be >= 0"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.MaxNewTokens < 1 {
		errs = append(errs, errors.New("max_new_tokens must be >= 1"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	switch c.Store.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if h := c.Auth.APIKeyHash; h != "" && !strings.HasPrefix(h, "$2") {
		errs = append(errs, errors.New("auth.api_key_hash must be a bcrypt hash"))
	}
	if c.Reference.Enabled && c.Reference.ContextSize < 1 {
		errs = append(errs, errors.New("reference.context_size must be >= 1"))
	}
	return errors.Join(errs...)
}
