package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitError  = 1
	exitNotTor = 2
)

// exitCodeError carries a process exit code other than 1.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// exitCode returns the process exit code for err.
func exitCode(err error) int {
	var ece *exitCodeError
	if errors.As(err, &ece) {
		return ece.code
	}
	return exitError
}

// NewRootCmd creates the root command for torcheck.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torcheck",
		Short: "Verify that traffic goes through the Tor network",
		Long: `torcheck asks the Tor Project's check service whether requests sent
through a SOCKS proxy leave through a Tor exit relay.

By default, torcheck starts an embedded Tor daemon automatically.
Use --external-tor to test an existing Tor proxy instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with 1 on error, or 2 when a
// check reported that Tor is not in use.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
