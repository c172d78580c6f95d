package main

import (
	"errors"
	"fmt"
	"maps"
	"os"

	cenv "github.com/caarlos0/env/v11"
	"github.com/mattn/go-isatty"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/service/installer"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/sandevgo/tuskmem/pkg/env"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/spf13/cobra"
)

type initOptions struct {
	force              bool
	yes                bool
	embeddingProvider  string
	embeddingModel     string
	extractionProvider string
	extractionModel    string
}

var initFlags initOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .env into the runtime directory",
	Long: `Creates the runtime directory and writes the effective configuration,
defaults plus anything set in the environment or by flags, to its .env file.

On a terminal a wizard asks for providers, models and API keys. Questions
already answered by the environment or a flag are skipped. Use --yes to
write without asking.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		appCfg := config.NewAppConfig(ctx)
		path := appCfg.GetEnvPath()

		if _, err := os.Stat(path); err == nil && !initFlags.force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		values := initFlags.values(cenv.ToMap(os.Environ()))
		if !initFlags.yes && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
			var err error
			if values, err = installer.RunWizard(values); err != nil {
				return err
			}
		}

		if err := os.MkdirAll(appCfg.GetRuntimePath(), 0o755); err != nil {
			return err
		}
		if err := writeEnvFile(path, values); err != nil {
			return err
		}

		log.FromCtx(ctx).Debug().Str("path", path).Msg("wrote env file")
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.SuccessStyle.Render("wrote"), path)
		return nil
	},
}

// values overlays the flags that were given on environ.
func (o initOptions) values(environ map[string]string) map[string]string {
	out := maps.Clone(environ)
	if out == nil {
		out = make(map[string]string)
	}
	for k, v := range map[string]string{
		"EMBEDDING_PROVIDER":  o.embeddingProvider,
		"EMBEDDING_MODEL":     o.embeddingModel,
		"EXTRACTION_PROVIDER": o.extractionProvider,
		"EXTRACTION_MODEL":    o.extractionModel,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// writeEnvFile validates values through the config parsers and renders
// the result, defaults included.
func writeEnvFile(path string, values map[string]string) error {
	opts := cenv.Options{Environment: values}

	emb, err := config.ParseEmbeddingConfig(opts)
	if err != nil {
		return fmt.Errorf("invalid embedding settings: %w", err)
	}
	ext, err := config.ParseExtractionConfig(opts)
	if err != nil {
		return fmt.Errorf("invalid extraction settings: %w", err)
	}
	search, err := config.ParseSearchConfig(opts)
	if err != nil {
		return fmt.Errorf("invalid search settings: %w", err)
	}
	keys, err := config.ParseProviderConfig(opts)
	if err != nil {
		return fmt.Errorf("invalid provider settings: %w", err)
	}

	if err := env.Write(path, emb, ext, search, keys); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// the file may hold API keys
	return os.Chmod(path, 0o600)
}

func init() {
	f := initCmd.Flags()
	f.BoolVarP(&initFlags.force, "force", "f", false, "overwrite an existing .env")
	f.BoolVarP(&initFlags.yes, "yes", "y", false, "do not ask, write defaults and the given flags")
	f.StringVar(&initFlags.embeddingProvider, "embedding-provider", "", "ollama, openai, voyage or custom")
	f.StringVar(&initFlags.embeddingModel, "embedding-model", "", "embedding model name")
	f.StringVar(&initFlags.extractionProvider, "extraction-provider", "", "ollama, anthropic, openai, openrouter or custom")
	f.StringVar(&initFlags.extractionModel, "extraction-model", "", "extraction model name")
	rootCmd.AddCommand(initCmd)
}
