package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"patchscope/internal/analyzer"
	"patchscope/internal/auth"
	"patchscope/internal/config"
	"patchscope/internal/grpchealth"
	"patchscope/internal/httpapi"
	"patchscope/internal/reference"
	"patchscope/internal/registry"
	"patchscope/internal/store"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and JSON API",
		Example: `  patchscope serve --model-path ~/models/llm/Llama-3.2-1B.Q8_0.gguf
  patchscope serve --model-path llama3.2:1b --store-driver sqlite --store-dsn runs.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configFrom(cmd.Context()))
		},
	}
	f := cmd.Flags()
	f.String("addr", ":5000", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address (empty disables)")
	f.Bool("watch-models", true, "rescan --models-dir on changes")
	f.Int("max-queue-depth", 32, "requests allowed to wait for the engine")
	f.Int("max-inflight", 1, "concurrent forward passes")
	f.Duration("max-wait", 30*time.Second, "longest a request waits for admission")
	f.Duration("request-timeout", 120*time.Second, "per-request analysis timeout (0 disables)")
	f.Int64("max-body-bytes", 1<<20, "request body limit")
	f.StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	f.Bool("reference", false, "add a llama.cpp baseline to patch results (needs -tags llama)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := zlog.Logger

	var st *store.Store
	if cfg.Store.Driver != "" {
		var err error
		if st, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN); err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		log.Info().Str("driver", cfg.Store.Driver).Msg("run store ready")
	}

	var gen *reference.Generator
	a, err := openAnalyzer(cfg, func(ac *analyzer.Config) {
		ac.Logger = &log
		if st != nil {
			ac.Recorder = st
		}
		if cfg.Reference.Enabled {
			g, err := reference.New(ac.ModelPath, reference.Options{ContextSize: cfg.Reference.ContextSize, Threads: cfg.Threads})
			if err != nil {
				log.Warn().Err(err).Msg("reference baseline disabled")
				return
			}
			gen, ac.Baseline = g, g
		}
	})
	if gen != nil {
		defer func() { _ = gen.Close() }()
	}
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(cctx); err != nil {
			log.Warn().Err(err).Msg("close analyzer")
		}
	}()
	info, _ := a.ModelInfo()
	log.Info().Str("model", a.ModelID()).Str("path", a.Path()).Int("layers", info.NumLayers).Int("hidden", info.HiddenSize).Msg("model loaded")

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.Log.Level)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeout(cfg.RequestTimeout)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, nil, nil)
	httpapi.SetBaseContext(ctx)

	catalog := registry.NewCatalog(a.Path())
	opts := []httpapi.Option{httpapi.WithModels(catalog)}
	if st != nil {
		opts = append(opts, httpapi.WithRuns(st))
	}
	if authn := auth.New(cfg.Auth.APIKeyHash); authn != nil {
		opts = append(opts, httpapi.WithAuth(authn.Middleware))
		log.Info().Msg("API key auth enabled")
	}

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(a, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return egctx },
	}
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})

	if cfg.GRPCAddr != "" {
		hs := grpchealth.New()
		hs.SetServing(a.Loaded())
		eg.Go(func() error { return hs.ListenAndServe(egctx, cfg.GRPCAddr) })
	}

	if cfg.WatchModels {
		w := &registry.Watcher{Dir: cfg.ModelsDir, OnChange: catalog.Set, Logger: &log}
		eg.Go(func() error { return w.Run(egctx) })
	} else if models, err := registry.LoadDir(cfg.ModelsDir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("models dir unreadable")
	} else {
		catalog.Set(models)
	}

	return eg.Wait()
}
