package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/graph"
)

type depsOptions struct {
	all bool
}

type graphReport struct {
	Nodes []string     `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
	Stats graph.Stats  `json:"stats"`
}

type cyclesReport struct {
	Cycles [][]string `json:"cycles"`
}

type orphansReport struct {
	Orphans []graph.Orphan `json:"orphans"`
}

func newDepsCmd(g *globalOptions) *cobra.Command {
	opts := &depsOptions{}
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Analyze the file dependency graph",
		Long: `Deps reports on the graph of imports between indexed files: the graph itself,
import cycles, the files a change would affect, and files nothing imports.`,
	}
	cmd.PersistentFlags().BoolVar(&opts.all, "all", false, "graph: include external modules; orphans: include entry points")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "graph",
			Short: "Print the files and import edges",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDepsGraph(cmd, g, opts)
			},
		},
		&cobra.Command{
			Use:   "cycles",
			Short: "List import cycles",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDepsCycles(cmd, g)
			},
		},
		&cobra.Command{
			Use:   "impact <file>",
			Short: "List the files affected by a change to a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDepsImpact(cmd, g, args[0])
			},
		},
		&cobra.Command{
			Use:   "orphans",
			Short: "List files no other file imports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDepsOrphans(cmd, g, opts)
			},
		},
	)
	return cmd
}

func runDepsGraph(cmd *cobra.Command, g *globalOptions, opts *depsOptions) error {
	ws, err := openWorkspace(cmd.Context(), g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()

	dg := ws.index.Graph()
	report := graphReport{Nodes: dg.Nodes(), Edges: dg.Edges(opts.all), Stats: dg.Stats()}
	if report.Nodes == nil {
		report.Nodes = []string{}
	}
	if report.Edges == nil {
		report.Edges = []graph.Edge{}
	}
	if g.jsonOut {
		return writeJSON(g.stdout, report)
	}

	fmt.Fprintf(g.stdout, "%s, %s, %s\n",
		plural(report.Stats.Nodes, "file"), plural(report.Stats.Edges, "internal edge"), plural(report.Stats.Externals, "external edge"))
	for _, e := range report.Edges {
		marker := "->"
		if !e.Internal() {
			marker = "~>"
		}
		fmt.Fprintf(g.stdout, "  %s %s %s\n", e.From, marker, e.To)
	}
	return nil
}

func runDepsCycles(cmd *cobra.Command, g *globalOptions) error {
	ws, err := openWorkspace(cmd.Context(), g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()

	cycles := ws.index.Graph().Cycles()
	if cycles == nil {
		cycles = [][]string{}
	}
	if g.jsonOut {
		return writeJSON(g.stdout, cyclesReport{Cycles: cycles})
	}

	if len(cycles) == 0 {
		fmt.Fprintln(g.stdout, "No import cycles")
		return nil
	}
	fmt.Fprintf(g.stdout, "%s:\n", plural(len(cycles), "import cycle"))
	for _, c := range cycles {
		fmt.Fprintf(g.stdout, "  %s -> %s\n", strings.Join(c, " -> "), c[0])
	}
	return nil
}

func runDepsImpact(cmd *cobra.Command, g *globalOptions, file string) error {
	ws, err := openWorkspace(cmd.Context(), g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()

	rel, err := ws.index.RelPath(file)
	if err != nil {
		return err
	}
	impact, err := ws.index.Graph().Impact(rel)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return writeJSON(g.stdout, impact)
	}

	fmt.Fprintf(g.stdout, "Impact of %s: %s (score %d)\n", impact.File, impact.Level, impact.Score)
	fmt.Fprintf(g.stdout, "Direct dependents (%d):\n", len(impact.Direct))
	for _, p := range impact.Direct {
		fmt.Fprintf(g.stdout, "  %s\n", p)
	}
	fmt.Fprintf(g.stdout, "All affected files (%d):\n", len(impact.Transitive))
	for _, p := range impact.Transitive {
		fmt.Fprintf(g.stdout, "  %s\n", p)
	}
	return nil
}

func runDepsOrphans(cmd *cobra.Command, g *globalOptions, opts *depsOptions) error {
	ws, err := openWorkspace(cmd.Context(), g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()

	var isEntry func(string) bool
	if !opts.all {
		ep, err := ws.cfg.EntryPoints()
		if err != nil {
			return err
		}
		isEntry = ep.Match
	}
	orphans := ws.index.Graph().Orphans(isEntry)
	if orphans == nil {
		orphans = []graph.Orphan{}
	}
	if g.jsonOut {
		return writeJSON(g.stdout, orphansReport{Orphans: orphans})
	}

	if len(orphans) == 0 {
		fmt.Fprintln(g.stdout, "No orphaned files")
		return nil
	}
	for _, o := range orphans {
		fmt.Fprintf(g.stdout, "  %s: %s\n", o.Path, o.Reason)
	}
	return nil
}
