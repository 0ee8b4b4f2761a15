package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1 // I/O and other fatal errors
	ExitRejected = 2 // validation failures, unknown or ambiguous symbols
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	jsonOut    bool
	root       string
	configFile string
	verbose    bool

	stdout io.Writer
	stderr io.Writer
}

// newRootCmd builds the command tree. Each call returns a fresh tree so flag
// state never leaks between runs.
func newRootCmd() (*cobra.Command, *globalOptions) {
	g := &globalOptions{stdout: os.Stdout, stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "codemorph",
		Short: "Index a codebase and refactor it safely across files",
		Long: `codemorph indexes the symbols, references and imports of a multi-language
codebase and uses that index to rename symbols, move files and extract
functions, fixing every affected file in one step.

Every refactoring can be previewed as a unified diff with --preview before
anything is written.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.verbose {
				log.SetOutput(g.stderr)
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&g.jsonOut, "json", false, "write one JSON document instead of text")
	flags.StringVar(&g.root, "root", "", "project root (default is the current directory)")
	flags.StringVar(&g.configFile, "config", "", "config file (default is <root>/.codemorph/config.yml)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newIndexCmd(g),
		newSearchCmd(g),
		newRenameCmd(g),
		newMoveCmd(g),
		newRefactorCmd(g),
		newDepsCmd(g),
		newVersionCmd(g),
	)
	return rootCmd, g
}

// Execute runs the CLI against os.Args and returns the process exit code.
// This is called by main.main().
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes one command line and returns its exit code. Errors are
// reported on stderr, or as a JSON error document on stdout with --json.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd, g := newRootCmd()
	g.stdout, g.stderr = stdout, stderr
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var reported *reportedError
	switch {
	case errors.As(err, &reported) && g.jsonOut:
	case g.jsonOut:
		if werr := writeJSON(stdout, errorDocument(err)); werr != nil {
			fmt.Fprintln(stderr, "Error:", err)
		}
	default:
		fmt.Fprintln(stderr, "Error:", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	// The outermost classified error decides, so a failed commit whose causes
	// include stale-content validation still counts as an I/O failure.
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindAmbiguous, errs.KindNotFound:
		return ExitRejected
	}
	return ExitFailure
}

func newVersionCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the codemorph version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.jsonOut {
				return writeJSON(g.stdout, map[string]string{"version": Version})
			}
			fmt.Fprintf(g.stdout, "codemorph %s\n", Version)
			return nil
		},
	}
}
