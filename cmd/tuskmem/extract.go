package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/sandevgo/tuskmem/pkg/conv"
	"github.com/spf13/cobra"
)

var extractConversation string

var extractCmd = &cobra.Command{
	Use:   "extract <file|url>",
	Short: "Extract memories from a document or a conversation",
	Long: `Mines a document for memories. Markdown and HTML are converted to text
first; an http(s) argument is fetched.

With --conversation the file holds a JSON array of {"id", "role", "content"}
messages. Messages already processed for that conversation are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), true, func(ctx context.Context, app *App) error {
			var (
				created []core.Memory
				err     error
			)
			if extractConversation != "" {
				created, err = extractMessages(ctx, app, extractConversation, args[0])
			} else {
				created, err = extractDocument(ctx, app, args[0])
			}

			out := cmd.OutOrStdout()
			if len(created) == 0 {
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ui.DescStyle.Render("nothing new worth remembering"))
				return nil
			}

			fmt.Fprintln(out, ui.TitleStyle.Render(fmt.Sprintf("Stored %d memories", len(created))))
			printMemories(out, created)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", ui.ErrorStyle.Render("partially failed:"), err)
			}
			return nil
		})
	},
}

func extractDocument(ctx context.Context, app *App, target string) ([]core.Memory, error) {
	var (
		text string
		err  error
	)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		text, err = app.Fetcher.FetchText(ctx, target)
	} else {
		var data []byte
		if data, err = os.ReadFile(target); err == nil {
			text, err = conv.DocumentToText(filepath.Base(target), data)
		}
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s is empty", target)
	}

	return app.Extractor.Extract(ctx, text, core.Source{Kind: core.SourceDocument})
}

func extractMessages(ctx context.Context, app *App, conversationID, path string) ([]core.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var msgs []core.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return app.Extractor.ExtractFromConversation(ctx, conversationID, msgs)
}

func init() {
	extractCmd.Flags().StringVar(&extractConversation, "conversation", "", "treat the file as messages of this conversation")
	rootCmd.AddCommand(extractCmd)
}
