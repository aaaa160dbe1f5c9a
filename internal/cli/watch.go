package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <document-id>",
		Short: "Stream committed states of a document",
		Long: `Subscribe to a document and print its current state followed by every
committed update, until interrupted.

With --format json each update is one JSON object per line.

Examples:
  docsync watch doc-1
  docsync watch doc-1 --count 3 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many updates (0 = until interrupted)")
	return cmd
}

func runWatch(opts *WatchOptions, documentID string, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(ctx, opts.RootOptions, func(st store.Store) error {
		sub, err := st.Subscribe(ctx, documentID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to subscribe", err)
		}
		defer sub.Close()

		opts.logger().Info("watching document", "doc", documentID)
		w := cmd.OutOrStdout()
		enc := json.NewEncoder(w)

		seen := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-sub.Updates():
				if !ok {
					if err := sub.Err(); err != nil {
						return WrapExitError(ExitFailure, "subscription ended", err)
					}
					return nil
				}

				view := viewOf(snap, false)
				if opts.Format == "json" {
					if err := enc.Encode(view); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(w, view)
				}

				seen++
				if opts.Count > 0 && seen >= opts.Count {
					return nil
				}
			}
		}
	})
}
