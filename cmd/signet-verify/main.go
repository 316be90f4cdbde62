// Command signet-verify checks signet receipt chains and exported bundles.
//
// Exit codes: 0 when the input verifies, 1 when verification fails or an
// input cannot be read, 2 for usage errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"signet.dev/verify/internal/log"

	_ "signet.dev/verify/storage/grpccas"
	_ "signet.dev/verify/storage/localfs"
	_ "signet.dev/verify/storage/sqlitecas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries an exit code. A nil err exits silently: the command has
// already printed its verdict.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func usagef(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func failf(format string, args ...any) error {
	return &exitError{code: 1, err: fmt.Errorf(format, args...)}
}

// errInvalid reports a failed verification whose result was already printed.
var errInvalid = &exitError{code: 1}

func run(args []string, out io.Writer, errOut io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(errOut, "signet-verify: %v\n", ee.err)
		}
		if ee.code == 2 && ee.err != nil {
			fmt.Fprintln(errOut, "run 'signet-verify --help' for usage")
		}
		return ee.code
	}
	// Everything else comes from cobra itself: unknown commands, bad flags,
	// wrong argument counts.
	fmt.Fprintf(errOut, "signet-verify: %v\n", err)
	fmt.Fprintln(errOut, "run 'signet-verify --help' for usage")
	return 2
}

func newRootCmd() *cobra.Command {
	var (
		verbose bool
		logJSON bool
	)
	root := &cobra.Command{
		Use:   "signet-verify",
		Short: "Verify signet receipt chains and signed export bundles",
		Long: `signet-verify recomputes document CIDs, validates receipt chains and
checks Ed25519 signatures over exported bundles. It never creates or signs
receipts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(cmd.ErrOrStderr())
			_ = cmd.Help()
			return &exitError{code: 2}
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Init(log.Options{Verbose: verbose, JSON: logJSON, Stderr: cmd.ErrOrStderr()})
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")

	root.AddCommand(
		newCIDCmd(),
		newVerifyBundleCmd(),
		newValidateChainCmd(),
		newSelectKeyCmd(),
		newB64UCmd(),
		newStoreCmd(),
	)
	return root
}
