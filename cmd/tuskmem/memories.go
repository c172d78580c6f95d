package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/spf13/cobra"
)

type filterFlags struct {
	statuses     []string
	categories   []string
	contentTypes []string
	conversation string
}

func (f *filterFlags) register(cmd *cobra.Command, withConversation bool) {
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "statuses to include (default active)")
	cmd.Flags().StringSliceVarP(&f.categories, "category", "c", nil, "match any of these categories")
	cmd.Flags().StringSliceVarP(&f.contentTypes, "type", "t", nil, "content types to include")
	if withConversation {
		cmd.Flags().StringVar(&f.conversation, "conversation", "", "only memories from this conversation")
	}
}

func (f *filterFlags) filter() (core.Filter, error) {
	filter := core.Filter{Categories: f.categories, ConversationID: f.conversation}
	for _, s := range f.statuses {
		st := core.Status(s)
		if !st.Valid() {
			return core.Filter{}, fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	for _, t := range f.contentTypes {
		ct := core.ContentType(t)
		if !ct.Valid() {
			return core.Filter{}, fmt.Errorf("unknown content type %q", t)
		}
		filter.ContentTypes = append(filter.ContentTypes, ct)
	}
	return filter, nil
}

// ─── add ────────────────────────────────────────────────────────────────────

var addFlags struct {
	contentType string
	categories  []string
	importance  float64
	confidence  float64
	verified    bool
}

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nm := memory.NewMemory{
			Content:     args[0],
			ContentType: core.ContentType(addFlags.contentType),
			Source:      core.Source{Kind: core.SourceManual},
			Categories:  addFlags.categories,
			Verified:    addFlags.verified,
		}
		if cmd.Flags().Changed("importance") {
			nm.Importance = &addFlags.importance
		}
		if cmd.Flags().Changed("confidence") {
			nm.Confidence = &addFlags.confidence
		}

		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			m, err := app.Store.Create(ctx, nm)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.SuccessStyle.Render("stored"), ui.IDStyle.Render(m.ID))
			return nil
		})
	},
}

// ─── get ────────────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show every field of a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			m, err := app.Store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderDetails(m))
			return nil
		})
	},
}

// ─── list ───────────────────────────────────────────────────────────────────

var (
	listFilter filterFlags
	listPage   core.Page
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilter.filter()
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			memories, err := app.Store.List(ctx, filter, listPage)
			if err != nil {
				return err
			}
			printMemories(cmd.OutOrStdout(), memories)
			return nil
		})
	},
}

// ─── delete ─────────────────────────────────────────────────────────────────

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Soft-delete memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			for _, id := range args {
				if err := app.Store.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.SuccessStyle.Render("deleted"), ui.IDStyle.Render(id))
			}
			return nil
		})
	},
}

// ─── search ─────────────────────────────────────────────────────────────────

var (
	searchFilter filterFlags
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid semantic and keyword search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := searchFilter.filter()
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
			hits, err := app.Searcher.Search(ctx, args[0], filter, searchLimit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, ui.DescStyle.Render("no memories found"))
				return nil
			}
			for _, h := range hits {
				fmt.Fprintln(out, ui.RenderMemory(h.Memory, h.Score))
				fmt.Fprintln(out)
			}
			return nil
		})
	},
}

func printMemories(out io.Writer, memories []core.Memory) {
	if len(memories) == 0 {
		fmt.Fprintln(out, ui.DescStyle.Render("no memories stored yet"))
		return
	}
	for _, m := range memories {
		fmt.Fprintln(out, ui.RenderMemory(m, -1))
		fmt.Fprintln(out)
	}
}

func init() {
	addCmd.Flags().StringVarP(&addFlags.contentType, "type", "t", string(core.ContentFact), "content type")
	addCmd.Flags().StringSliceVarP(&addFlags.categories, "category", "c", nil, "categories")
	addCmd.Flags().Float64Var(&addFlags.importance, "importance", core.DefaultImportance, "importance in [0,1]")
	addCmd.Flags().Float64Var(&addFlags.confidence, "confidence", 0, "confidence in [0,1]")
	addCmd.Flags().BoolVar(&addFlags.verified, "verified", false, "mark as confirmed by the user")

	listFilter.register(listCmd, true)
	listCmd.Flags().IntVarP(&listPage.Limit, "limit", "n", core.DefaultPageLimit, "page size")
	listCmd.Flags().IntVar(&listPage.Offset, "offset", 0, "memories to skip")

	searchFilter.register(searchCmd, false)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results (default from SEARCH_DEFAULT_LIMIT)")

	rootCmd.AddCommand(addCmd, getCmd, listCmd, deleteCmd, searchCmd)
}
