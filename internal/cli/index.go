package cli

import (
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
)

type indexOptions struct {
	includeExt []string
	exclude    []string
	watch      bool
	noCache    bool
	quiet      bool
}

// indexReport is the JSON document of the index command.
type indexReport struct {
	Root   string              `json:"root"`
	Stats  *indexer.IndexStats `json:"stats"`
	Errors []string            `json:"files_with_errors"`
}

func newIndexCmd(g *globalOptions) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or update the symbol index",
		Long: `Index parses every supported source file under the project root and records
its symbols, references and imports. Files whose content did not change since
the last run are reused from the cache in .codemorph/index.db.

Examples:
  # Index the current directory
  codemorph index

  # Only Go and Python files, skipping generated code
  codemorph index --include-ext .go,.py --exclude "gen/**"

  # Keep the index current while files change
  codemorph index --watch
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				g.root = args[0]
			}
			return runIndex(cmd, g, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.includeExt, "include-ext", nil, "only index files with these extensions (e.g. .go,.py)")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, "glob of root-relative paths to skip (repeatable)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "watch for file changes and reindex incrementally")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "ignore and do not write the index cache")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "disable progress bars and non-error output")
	return cmd
}

func runIndex(cmd *cobra.Command, g *globalOptions, opts *indexOptions) error {
	ctx := cmd.Context()
	if opts.watch && g.jsonOut {
		return errs.Validation("index", "", "", "watch-without-json", "--watch streams updates and cannot be combined with --json")
	}

	filter := indexer.Filter{IncludeExtensions: opts.includeExt, Exclude: opts.exclude}
	quiet := opts.quiet || g.jsonOut
	ws, err := openWorkspace(ctx, g, workspaceOptions{
		filter:   filter,
		noCache:  opts.noCache,
		progress: NewCLIProgressReporter(g.stderr, quiet),
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return err
	}
	defer ws.Close()

	broken := filesWithErrors(ws.index)
	if g.jsonOut {
		return writeJSON(g.stdout, indexReport{Root: ws.root, Stats: ws.stats, Errors: broken})
	}

	if opts.quiet {
		fmt.Fprintf(g.stdout, "Indexing complete: %s files in %.2fs\n",
			formatNumber(ws.stats.Files), ws.stats.Duration.Seconds())
	} else {
		printIndexSummary(g, ws.stats, broken)
	}

	if !opts.watch {
		return nil
	}
	return watchIndex(cmd, g, ws, filter, opts.quiet)
}

func printIndexSummary(g *globalOptions, stats *indexer.IndexStats, broken []string) {
	fmt.Fprintf(g.stdout, "  Symbols:      %s\n", formatNumber(stats.Symbols))
	fmt.Fprintf(g.stdout, "  References:   %s\n", formatNumber(stats.Usages))
	fmt.Fprintf(g.stdout, "  Imports:      %s\n", formatNumber(stats.Dependencies))
	if stats.Skipped > 0 || stats.Failed > 0 {
		fmt.Fprintf(g.stdout, "  Skipped:      %s, unreadable: %s\n", formatNumber(stats.Skipped), formatNumber(stats.Failed))
	}

	langs := make([]string, 0, len(stats.Languages))
	for lang := range stats.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		fmt.Fprintf(g.stdout, "  %-13s %s\n", lang+":", plural(stats.Languages[lang], "file"))
	}

	if len(broken) > 0 {
		fmt.Fprintf(g.stdout, "⚠ %s with parse errors:\n", plural(len(broken), "file"))
		for _, p := range broken {
			fmt.Fprintf(g.stdout, "  %s\n", p)
		}
	}
}

func watchIndex(cmd *cobra.Command, g *globalOptions, ws *workspace, filter indexer.Filter, quiet bool) error {
	ctx := cmd.Context()
	w, err := indexer.NewWatcher(ws.index, filter, indexer.WithOnBatch(func(b indexer.WatchBatch) {
		ws.persist(append(append([]string{}, b.Updated...), b.Removed...)...)
		for p, ferr := range b.Failed {
			log.Printf("Warning: failed to reindex %s: %v", p, ferr)
		}
		if !quiet {
			fmt.Fprintf(g.stdout, "Reindexed %s, removed %s\n",
				plural(len(b.Updated), "file"), plural(len(b.Removed), "file"))
		}
	}))
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintln(g.stdout, "Watching for changes (Ctrl+C to stop)...")
	}
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	if !quiet {
		fmt.Fprintln(g.stdout, "Watch mode stopped")
	}
	return nil
}

func filesWithErrors(idx *indexer.Index) []string {
	broken := []string{}
	for _, rec := range idx.Records() {
		if rec.HasErrors() {
			broken = append(broken, rec.Path)
		}
	}
	return broken
}
