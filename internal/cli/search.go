package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/resolver"
)

type searchOptions struct {
	kind  string
	fuzzy bool
	limit int
	refs  bool
}

type searchHit struct {
	indexer.SearchResult
	References []resolver.Reference `json:"references,omitempty"`
}

type searchReport struct {
	Query   string      `json:"query"`
	Results []searchHit `json:"results"`
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find symbol declarations by name",
		Long: `Search ranks declarations whose name matches the query exactly, by prefix or
by substring. --fuzzy adds near matches, --refs lists every site that refers
to each declaration found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", "only declarations of this kind (function, class, variable, ...)")
	cmd.Flags().BoolVar(&opts.fuzzy, "fuzzy", false, "include fuzzy matches")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of results (0 for all)")
	cmd.Flags().BoolVar(&opts.refs, "refs", false, "list the references of each result")
	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, opts *searchOptions, query string) error {
	var kind extraction.SymbolKind
	if opts.kind != "" {
		k, err := extraction.ParseSymbolKind(opts.kind)
		if err != nil {
			return errs.Validation("search", "", "", "symbol-kind", err.Error())
		}
		kind = k
	}
	if strings.TrimSpace(query) == "" {
		return errs.Validation("search", "", "", "query-required", "a search query is required")
	}
	if opts.limit < 0 {
		return errs.Validation("search", "", "", "limit-non-negative", "--limit cannot be negative")
	}

	ws, err := openWorkspace(cmd.Context(), g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()

	results := ws.index.Symbols().Search(query, indexer.SearchOptions{Kind: kind, Limit: opts.limit, Fuzzy: opts.fuzzy})
	report := searchReport{Query: query, Results: make([]searchHit, 0, len(results))}
	for _, r := range results {
		hit := searchHit{SearchResult: r}
		if opts.refs {
			res, err := ws.Resolver()
			if err != nil {
				return err
			}
			refs, err := res.References(r.Symbol)
			if err != nil {
				return err
			}
			hit.References = refs
		}
		report.Results = append(report.Results, hit)
	}

	if g.jsonOut {
		return writeJSON(g.stdout, report)
	}
	if len(report.Results) == 0 {
		fmt.Fprintf(g.stdout, "No symbols match %q\n", query)
		return nil
	}
	for _, hit := range report.Results {
		s := hit.Symbol
		fmt.Fprintf(g.stdout, "%-10s %-30s %s (%s)\n", s.Kind, s.QualifiedName(), s.Location(), hit.Match)
		for _, ref := range hit.References {
			marker := " "
			if ref.Definition {
				marker = "*"
			}
			fmt.Fprintf(g.stdout, "    %s %s:%d:%d  %s\n", marker, ref.File, ref.Range.Start.Line, ref.Range.Start.Column+1, strings.TrimSpace(ref.Line))
		}
	}
	return nil
}
