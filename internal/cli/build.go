package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Rebuild the knowledge base from the corpus",
		Long: "Deletes the existing chunk store and routing table, then chunks, embeds and " +
			"summarises every archive in the corpus directory. Run with serving stopped.",
		Args: cobra.NoArgs,
		RunE: runBuild,
	})
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store.Type == "memory" {
		return fmt.Errorf("store type memory is built by serve/chat at startup; nothing to persist")
	}
	logger = logger.With(zap.String("build_id", ulid.Make().String()))

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := createStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := newBuilder(cfg, emb, store, logger).Build(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tCHUNKS\tSUMMARY")
	for _, a := range report.Archives {
		summary := a.Summary
		if a.Err != nil {
			summary += "  (skipped: " + a.Err.Error() + ")"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", a.Filename, a.Chunks, summary)
	}
	_ = w.Flush()
	fmt.Printf("\n%d archives, %d chunks -> %s (collection %s)\n", len(report.Archives), report.Chunks, cfg.Store.Type, cfg.Store.Collection)
	fmt.Printf("routing table: %s\n", cfg.Store.RoutingPath())
	return nil
}
