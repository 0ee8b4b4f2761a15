package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/refactor"
)

type renameOptions struct {
	symbol  string
	newName string
	kind    string
	file    string
	scope   string
	preview bool
	force   bool
}

func newRenameCmd(g *globalOptions) *cobra.Command {
	opts := &renameOptions{}
	cmd := &cobra.Command{
		Use:   "rename --symbol <name> --new-name <name>",
		Short: "Rename a symbol and every reference to it",
		Long: `Rename resolves the symbol, then rewrites its declaration and every reference
across the project. When several declarations share the name, narrow the
lookup with --type, --file or --scope.

A rename whose checks produced warnings (for example a name collision) is
only written with --force.

Examples:
  codemorph rename --symbol User --new-name Account --preview
  codemorph rename --symbol save --new-name persist --scope User --file models.py
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "name of the symbol to rename")
	cmd.Flags().StringVar(&opts.newName, "new-name", "", "new name")
	cmd.Flags().StringVar(&opts.kind, "type", "", "symbol kind (function, class, variable, ...)")
	cmd.Flags().StringVar(&opts.file, "file", "", "declaring file, or a suffix of its path")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "enclosing class or function")
	cmd.Flags().BoolVar(&opts.preview, "preview", false, "show the diff without writing")
	cmd.Flags().BoolVar(&opts.force, "force", false, "write even when the checks produced warnings")
	return cmd
}

func runRename(cmd *cobra.Command, g *globalOptions, opts *renameOptions) error {
	const op = "rename"
	ctx := cmd.Context()

	req := refactor.RenameRequest{
		Symbol:  opts.symbol,
		NewName: opts.newName,
		File:    opts.file,
		Scope:   opts.scope,
		Preview: opts.preview,
	}
	if opts.kind != "" {
		kind, err := extraction.ParseSymbolKind(opts.kind)
		if err != nil {
			return errs.Validation(op, opts.file, opts.symbol, "symbol-kind", err.Error())
		}
		req.Kind = kind
	}

	ws, err := openWorkspace(ctx, g, workspaceOptions{})
	if err != nil {
		return err
	}
	defer ws.Close()
	engine, err := ws.Engine()
	if err != nil {
		return err
	}

	if !opts.preview && !opts.force {
		check := req
		check.Preview = true
		planned, err := engine.Rename(ctx, check)
		if err != nil {
			return err
		}
		if len(planned.Validation.Warnings) > 0 {
			first := planned.Validation.Warnings[0]
			warnErr := errs.Validation(op, first.Path, first.Symbol, "confirm-warnings",
				fmt.Sprintf("%s; review with --preview and rerun with --force to write anyway", first.Message))
			if !g.jsonOut {
				printValidation(g.stdout, planned.Validation)
			}
			return warnErr
		}
	}

	res, err := engine.Rename(ctx, req)
	if err != nil {
		return err
	}

	if res.State == refactor.StateApplied {
		ws.persist(refactor.Applied(res.Results)...)
	}
	if g.jsonOut {
		if err := writeJSON(g.stdout, res); err != nil {
			return err
		}
		return commitError(op, res.Results)
	}

	files := 0
	if res.Plan != nil {
		files = len(res.Plan.Files())
	}
	if res.State == refactor.StatePreviewed {
		printDiffs(g.stdout, res.Diffs)
		fmt.Fprintf(g.stdout, "Would rename %s to %s: %s in %s\n",
			res.Definition.QualifiedName(), res.NewName, plural(res.Plan.Len(), "edit"), plural(files, "file"))
		printValidation(g.stdout, res.Validation)
		return nil
	}

	fmt.Fprintf(g.stdout, "Renamed %s to %s: %s in %s\n",
		res.Definition.QualifiedName(), res.NewName, plural(res.Plan.Len(), "edit"), plural(files, "file"))
	printResults(g.stdout, res.Results)
	printValidation(g.stdout, res.Validation)
	return commitError(op, res.Results)
}
