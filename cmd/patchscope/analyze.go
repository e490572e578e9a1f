package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchscope/internal/analyzer"
	"patchscope/internal/cli"
	"patchscope/internal/export"
	"patchscope/internal/store"
	"patchscope/pkg/types"
)

// withAnalyzer loads the model (and the run store when configured) for the
// duration of fn.
func withAnalyzer(cmd *cobra.Command, fn func(ctx context.Context, a *analyzer.Analyzer) error) error {
	ctx := cmd.Context()
	cfg := configFrom(ctx)
	var st *store.Store
	if cfg.Store.Driver != "" {
		var err error
		if st, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN); err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
	}
	a, err := openAnalyzer(cfg, func(ac *analyzer.Config) {
		if st != nil {
			ac.Recorder = st
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	return fn(ctx, a)
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAnalyzer(cmd, func(_ context.Context, a *analyzer.Analyzer) error {
				info, err := a.ModelInfo()
				if err != nil {
					return err
				}
				return cli.RenderModelInfo(cmd.OutOrStdout(), info, outputFormat(cmd))
			})
		},
	}
}

func newActivationsCmd() *cobra.Command {
	var (
		layers    []int
		arrowPath string
	)
	cmd := &cobra.Command{
		Use:   "activations <prompt>",
		Short: "Show per-layer hidden state norms for a prompt",
		Example: `  patchscope activations "The Eiffel Tower is in" --layers 0,4,-1
  patchscope activations "Harry" --arrow harry.arrows`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sel []int
			if cmd.Flags().Changed("layers") {
				sel = layers
			}
			return withAnalyzer(cmd, func(ctx context.Context, a *analyzer.Analyzer) error {
				res, err := a.Activations(ctx, args[0], sel)
				if err != nil {
					return err
				}
				if arrowPath != "" {
					if err := writeArrow(arrowPath, res); err != nil {
						return err
					}
				}
				w := cmd.OutOrStdout()
				return cli.RenderActivations(w, res, outputFormat(cmd), cli.IsTerminal(w))
			})
		},
	}
	cmd.Flags().IntSliceVar(&layers, "layers", nil, "hidden-state indices (default: every block input)")
	cmd.Flags().StringVar(&arrowPath, "arrow", "", "also write the norms as an Arrow IPC stream to this file")
	return cmd
}

func writeArrow(path string, res *types.ActivationsResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteActivations(f, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newPatchCmd() *cobra.Command {
	var (
		source, target           string
		srcTok, tgtTok           int
		srcLayer, tgtLayer, nTok int
	)
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Patch a source hidden state into the target prompt's generation",
		Example: `  patchscope patch --source Harry --source-layer 2 --target-layer 2
  patchscope patch --source "Barack Obama" --n-tokens 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := types.PatchscopeRequest{
				SourcePrompt:   &source,
				TargetPrompt:   &target,
				SourceTokenIdx: &srcTok,
				TargetTokenIdx: &tgtTok,
				SourceLayerIdx: &srcLayer,
				TargetLayerIdx: &tgtLayer,
				NTokens:        &nTok,
			}
			return withAnalyzer(cmd, func(ctx context.Context, a *analyzer.Analyzer) error {
				res, err := a.Patchscope(ctx, req)
				if err != nil {
					return err
				}
				return cli.RenderPatch(cmd.OutOrStdout(), res, outputFormat(cmd))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "Harry", "source prompt")
	f.StringVar(&target, "target", "Respond only with the completion to this pattern: Man -> man, Car -> car, x ->", "target prompt")
	f.IntVar(&srcTok, "source-token", -1, "source token index (negative counts from the end)")
	f.IntVar(&tgtTok, "target-token", -3, "target token index (negative counts from the end)")
	f.IntVar(&srcLayer, "source-layer", 2, "hidden-state index read from the source pass")
	f.IntVar(&tgtLayer, "target-layer", 2, "block whose input is patched")
	f.IntVar(&nTok, "n-tokens", 1, "tokens to generate")
	return cmd
}
