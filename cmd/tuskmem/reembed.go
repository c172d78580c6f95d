package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/spf13/cobra"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Re-embed memories stored with an older embedding model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			n, err := app.Reembed.RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d memories\n", ui.SuccessStyle.Render("re-embedded"), n)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(reembedCmd)
}
