package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prism-board/config"
	"prism-board/domain"
)

type rootOptions struct {
	output string
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "prism-board",
		Short:         "Personal task board client",
		Long:          `A command line client for the prism task service: sign in, then list, create, edit, delete and move tasks across the todo / in progress / completed board.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return &domain.ValidationError{Field: "output", Message: "must be text or json"}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newBoardCmd(opts),
		newMoveCmd(opts),
		newListCmd(opts),
		newCreateCmd(opts),
		newEditCmd(opts),
		newDeleteCmd(opts),
		newServeMockCmd(opts),
	)
	return root
}

// withApp wires the components for one command and tears them down after.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	var (
		authErr  *domain.AuthError
		syncErr  *domain.SyncError
		validErr *domain.ValidationError
		remote   *domain.RemoteError
	)
	switch {
	case errors.As(err, &authErr):
		fmt.Fprintf(w, "Error: %v\nRun `prism-board login` to sign in.\n", err)
	case errors.As(err, &syncErr):
		fmt.Fprintf(w, "Error: could not save move of task %s, the board was restored: %v\n", syncErr.TaskID, syncErr.Err)
	case errors.As(err, &validErr):
		fmt.Fprintf(w, "Error: %v\n", validErr)
	case errors.As(err, &remote):
		fmt.Fprintf(w, "Error: task service: %v\n", remote)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
