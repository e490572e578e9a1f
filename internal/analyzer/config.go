package analyzer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"patchscope/pkg/types"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxInflight   = 1
	defaultMaxWait       = 30 * time.Second
	defaultMaxNewTokens  = 512
	// DefaultModelID labels the model when the caller gives none.
	DefaultModelID = "meta-llama/Llama-3.2-1B"
	// DefaultNTokens is used when a patchscope request omits n_tokens.
	DefaultNTokens = 10
)

// Baseline produces an independent continuation of a prompt, used as a
// sanity check next to the unpatched response.
type Baseline interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Recorder persists finished runs.
type Recorder interface {
	CreateRun(ctx context.Context, run *types.Run) error
}

// Config holds everything New needs.
type Config struct {
	ModelPath string
	ModelID   string
	// Threads bounds matmul parallelism; 0 means GOMAXPROCS.
	Threads       int
	MaxQueueDepth int
	MaxInflight   int
	MaxWait       time.Duration
	MaxNewTokens  int

	Baseline Baseline
	Recorder Recorder
	Logger   *zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}
	if c.MaxInflight > c.MaxQueueDepth {
		c.MaxInflight = c.MaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = defaultMaxNewTokens
	}
}
