package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"persona-rag/internal/scope"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "route [message]",
		Short: "Show the rewritten query and the archives the router picks",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRoute,
	})

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Run filtered similarity search directly, bypassing rewrite and routing",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	search.Flags().StringP("files", "F", "", "Comma-separated archive filenames to search (empty searches all)")
	RootCmd.AddCommand(search)
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	query, sc := rt.service.Route(cmd.Context(), strings.Join(args, " "))
	fmt.Printf("query: %s\nscope: %s\n", query, sc)
	if sc.Extracted {
		fmt.Println("(filenames were extracted from malformed router output)")
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	query := strings.Join(args, " ")
	files, _ := cmd.Flags().GetString("files")

	var sources []string
	if files != "" {
		sc := scope.Parse(files, 0)
		if sc.IsNone() {
			return fmt.Errorf("no valid archive filenames in %q", files)
		}
		sources = rt.retriever.Candidates(sc.Files)
	}
	vec, err := rt.embedder.Embed(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	hits, err := rt.store.Search(cmd.Context(), vec, cfg.Retriever.TopK, sources)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("no chunks matched")
		return nil
	}
	for i, h := range hits {
		preview := []rune(strings.ReplaceAll(h.Chunk.Content, "\n", " "))
		if len(preview) > 80 {
			preview = append(preview[:80], []rune("...")...)
		}
		fmt.Printf("[%d] %.3f %s | %s\n", i+1, h.Score, h.Chunk.Source, string(preview))
	}
	return nil
}
