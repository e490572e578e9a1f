package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"patchscope/internal/auth"
	"patchscope/internal/cli"
	"patchscope/internal/registry"
	"patchscope/internal/store"
	"patchscope/pkg/types"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List GGUF models in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			if cfg.ModelPath != "" {
				if p, err := registry.Resolve(cfg.ModelPath, cfg.ModelsDir); err == nil {
					cat := registry.NewCatalog(p)
					cat.Set(models)
					models = cat.List()
				}
			}
			return cli.RenderModels(cmd.OutOrStdout(), models, outputFormat(cmd))
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "Show recorded runs from the run store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)
			if cfg.Store.Driver == "" {
				return fmt.Errorf("no run store configured: set --store-driver and --store-dsn")
			}
			st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var runs []types.Run
			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				runs = []types.Run{*run}
			} else if runs, err = st.ListRuns(ctx, limit); err != nil {
				return err
			}
			return cli.RenderRuns(cmd.OutOrStdout(), runs, outputFormat(cmd))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := configFrom(cmd.Context()).YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	})
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and the bcrypt hash to configure",
		Long: `keygen prints a new API key and its bcrypt hash. Give the key to clients
and set auth.api_key_hash (or PATCHSCOPE_AUTH__API_KEY_HASH) to the hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nhash: %s\n", key, hash)
			return err
		},
	}
}
