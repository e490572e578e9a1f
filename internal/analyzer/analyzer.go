package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"patchscope/internal/gguf"
	"patchscope/internal/metrics"
	"patchscope/internal/model"
	"patchscope/internal/tokenizer"
	"patchscope/pkg/types"
)

// Analyzer owns one loaded model and its tokenizer.
type Analyzer struct {
	modelID string
	path    string
	file    *gguf.File
	model   *model.Model
	tok     *tokenizer.Tokenizer

	maxNewTokens int
	maxWait      time.Duration
	queueCh      chan struct{}
	genCh        chan struct{}

	baseline Baseline
	recorder Recorder
	log      zerolog.Logger
	closed   atomic.Bool

	closeMu  sync.Mutex
	unmapped bool
}

// New opens and loads the model at cfg.ModelPath.
func New(cfg Config) (*Analyzer, error) {
	cfg.applyDefaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("analyzer: model path is required")
	}
	logger := zlog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	start := time.Now()
	f, err := gguf.Open(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("analyzer: open model: %w", err)
	}
	m, err := model.Load(f, model.LoadOptions{Threads: cfg.Threads})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("analyzer: load model: %w", err)
	}
	tok, err := tokenizer.FromGGUF(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("analyzer: load tokenizer: %w", err)
	}
	if tok.VocabSize() != m.Config.VocabSize {
		f.Close()
		return nil, fmt.Errorf("analyzer: tokenizer has %d tokens, model expects %d", tok.VocabSize(), m.Config.VocabSize)
	}
	a := &Analyzer{
		modelID:      cfg.ModelID,
		path:         cfg.ModelPath,
		file:         f,
		model:        m,
		tok:          tok,
		maxNewTokens: cfg.MaxNewTokens,
		maxWait:      cfg.MaxWait,
		queueCh:      make(chan struct{}, cfg.MaxQueueDepth),
		genCh:        make(chan struct{}, cfg.MaxInflight),
		baseline:     cfg.Baseline,
		recorder:     cfg.Recorder,
		log:          logger.With().Str("model_id", cfg.ModelID).Logger(),
	}
	metrics.SetModelLoaded(true)
	a.log.Info().
		Str("path", cfg.ModelPath).
		Str("arch", m.Config.Arch).
		Int("layers", m.Config.NumLayers).
		Int("hidden", m.Config.Hidden).
		Int("vocab", m.Config.VocabSize).
		Str("tokenizer", tok.Model()).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return a, nil
}

// Loaded reports whether the analyzer can serve requests. Safe on nil.
func (a *Analyzer) Loaded() bool {
	return a != nil && a.model != nil && !a.closed.Load()
}

// ModelID returns the identifier the model was loaded under.
func (a *Analyzer) ModelID() string {
	if a == nil {
		return ""
	}
	return a.modelID
}

// Path returns the loaded GGUF file path.
func (a *Analyzer) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// ModelInfo describes the loaded model.
func (a *Analyzer) ModelInfo() (types.ModelInfo, error) {
	if !a.Loaded() {
		return types.ModelInfo{}, ErrNotLoaded
	}
	c := a.model.Config
	return types.ModelInfo{
		NumLayers:  c.NumLayers,
		VocabSize:  c.VocabSize,
		HiddenSize: c.Hidden,
		ModelID:    a.modelID,
	}, nil
}

// Close stops admitting work and unmaps the model once in-flight requests
// finish. If ctx expires first, the slots already taken are given back and
// a later Close retries the drain.
func (a *Analyzer) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.unmapped {
		return nil
	}
	if a.closed.CompareAndSwap(false, true) {
		metrics.SetModelLoaded(false)
	}
	// Filling every queue slot means nothing is running.
	taken := 0
	for taken < cap(a.queueCh) {
		select {
		case a.queueCh <- struct{}{}:
			taken++
		case <-ctx.Done():
			for ; taken > 0; taken-- {
				<-a.queueCh
			}
			return ctx.Err()
		}
	}
	a.unmapped = true
	return a.file.Close()
}

func (a *Analyzer) encode(text string) []int {
	return a.tok.Encode(text, a.tok.AddBOS())
}

func (a *Analyzer) checkContext(ids []int, extra int) error {
	if limit := a.model.Config.ContextLength; len(ids)+extra > limit {
		return ErrInvalidArgument("prompt has %d tokens, model context is %d", len(ids), limit)
	}
	return nil
}

// record persists a finished run. Failures are logged, never returned.
func (a *Analyzer) record(ctx context.Context, kind string, req, resp any, took time.Duration) {
	if a.recorder == nil {
		return
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", kind).Msg("encode run request")
		return
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", kind).Msg("encode run response")
		return
	}
	run := &types.Run{
		ID:          uuid.NewString(),
		Kind:        kind,
		ModelID:     a.modelID,
		Request:     reqJSON,
		Response:    respJSON,
		DurationMS:  took.Milliseconds(),
		CreatedUnix: time.Now().Unix(),
	}
	// Persist even if the client went away.
	if err := a.recorder.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		a.log.Warn().Err(err).Str("kind", kind).Msg("record run")
	}
}
