package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"patchscope/internal/analyzer"
	"patchscope/internal/cli"
	"patchscope/internal/config"
	"patchscope/internal/logging"
	"patchscope/internal/registry"
)

// Version is set at build time.
var Version = "0.1.0"

type configKey struct{}

// configFrom returns the configuration loaded by the root command.
func configFrom(ctx context.Context) config.Config {
	if c, ok := ctx.Value(configKey{}).(config.Config); ok {
		return c
	}
	c, _ := config.Load("", nil)
	return c
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:   "patchscope",
		Short: "Inspect and patch hidden states of a local language model",
		Long: `patchscope runs a GGUF model with a native Go forward pass, reports
per-layer hidden state norms, and patches a hidden state taken from one
prompt into the generation of another.

Configuration is layered: defaults, --config file (yaml, json or toml),
PATCHSCOPE_* environment variables, then flags.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "keygen" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			if f, _ := cmd.Flags().GetString("output"); !cli.ValidFormat(f) {
				return fmt.Errorf("unknown output format %q (want table or json)", f)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (.yaml, .json or .toml)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "console", "log format (console|json)")
	pf.String("model-path", "", "GGUF path, file name in --models-dir, or ollama name:tag")
	pf.String("model-id", analyzer.DefaultModelID, "identifier reported for the loaded model")
	pf.String("models-dir", "~/models/llm", "directory scanned for *.gguf files")
	pf.Int("threads", 0, "matmul threads (0 = GOMAXPROCS)")
	pf.Int("max-new-tokens", 512, "upper bound for n_tokens")
	pf.String("store-driver", "", "run store driver (sqlite|postgres); empty disables")
	pf.String("store-dsn", "", "run store DSN")
	pf.StringP("output", "o", cli.FormatTable, "output format (table|json)")
	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{cli.FormatTable, cli.FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCmd(),
		newInfoCmd(),
		newActivationsCmd(),
		newPatchCmd(),
		newModelsCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newKeygenCmd(),
	)
	return root
}

// openAnalyzer resolves and loads the configured model.
func openAnalyzer(cfg config.Config, mutate func(*analyzer.Config)) (*analyzer.Analyzer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("no model configured: set --model-path or model_path")
	}
	path, err := registry.Resolve(cfg.ModelPath, cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	acfg := analyzer.Config{
		ModelPath:     path,
		ModelID:       cfg.ModelID,
		Threads:       cfg.Threads,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxInflight:   cfg.MaxInflight,
		MaxWait:       cfg.MaxWait,
		MaxNewTokens:  cfg.MaxNewTokens,
	}
	if mutate != nil {
		mutate(&acfg)
	}
	return analyzer.New(acfg)
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}
