package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/refactor"
)

type moveOptions struct {
	preview   bool
	overwrite bool
}

func newMoveCmd(g *globalOptions) *cobra.Command {
	opts := &moveOptions{}
	cmd := &cobra.Command{
		Use:   "move <source> <target>",
		Short: "Move a file and rewrite the imports that point at it",
		Long: `Move relocates a file and rewrites every import statement that names its
path, including the relative imports inside the moved file. Paths are
relative to the project root.

Languages whose imports do not encode file paths (Go packages, for example)
are moved without touching other files and the move reports a warning.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd, g, opts, args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&opts.preview, "preview", false, "show the diff without writing")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "replace an existing target file")
	return cmd
}

func runMove(cmd *cobra.Command, g *globalOptions, opts *moveOptions, source, target string) error {
	const op = "move"
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()
	engine, err := ws.Engine()
	if err != nil {
		return err
	}

	res, err := engine.Move(ctx, refactor.MoveRequest{
		Source:    source,
		Target:    target,
		Overwrite: opts.overwrite,
		Preview:   opts.preview,
	})
	if err != nil {
		return err
	}

	if res.State == refactor.StateApplied && !res.NoOp {
		ws.persist(append([]string{res.Source, res.Target}, refactor.Applied(res.Results)...)...)
	}
	if g.jsonOut {
		if err := writeJSON(g.stdout, res); err != nil {
			return err
		}
		return commitError(op, res.Results)
	}

	switch {
	case res.NoOp:
		fmt.Fprintf(g.stdout, "%s is already at %s, nothing to do\n", res.Source, res.Target)
		return nil
	case res.State == refactor.StatePreviewed:
		printDiffs(g.stdout, res.Diffs)
		fmt.Fprintf(g.stdout, "Would move %s to %s, updating %s\n", res.Source, res.Target, plural(len(res.AffectedFiles), "file"))
	default:
		fmt.Fprintf(g.stdout, "Moved %s to %s, updated %s\n", res.Source, res.Target, plural(len(res.AffectedFiles), "file"))
		printResults(g.stdout, res.Results)
	}
	for _, f := range res.AffectedFiles {
		fmt.Fprintf(g.stdout, "  %s\n", f)
	}
	printValidation(g.stdout, res.Validation)
	return commitError(op, res.Results)
}
