package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/syncer"
)

// DocumentView is how commands print a committed document.
type DocumentView struct {
	DocumentID string      `json:"document_id"`
	Text       string      `json:"text"`
	WriterID   string      `json:"writer_id"`
	WriteTime  time.Time   `json:"write_time"`
	Content    content.Doc `json:"content,omitempty"`
}

func viewOf(snap store.Snapshot, withContent bool) DocumentView {
	v := DocumentView{
		DocumentID: snap.DocumentID,
		Text:       content.Text(snap.Content),
		WriterID:   snap.WriterID,
		WriteTime:  snap.WriteTime,
	}
	if withContent {
		v.Content = snap.Content
	}
	return v
}

func (v DocumentView) String() string {
	return fmt.Sprintf("%s  %s  %s\n%s", v.DocumentID, v.WriterID, v.WriteTime.Format(time.RFC3339Nano), v.Text)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List document ids in the store",
		Long: `List the ids of every document in the configured store, in ascending order.

Examples:
  docsync list
  docsync list --config docsync.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmdContext(cmd), rootOpts, func(st store.Store) error {
				ids, err := st.ListDocumentIDs(cmdContext(cmd))
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list documents", err)
				}

				f := newFormatter(cmd, rootOpts)
				if f.Format == "json" {
					return f.Success(map[string]any{"document_ids": ids})
				}
				if len(ids) == 0 {
					return f.Success("No documents.")
				}
				return f.Success(strings.Join(ids, "\n"))
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get <document-id>",
		Short: "Print a committed document",
		Long: `Print the committed state of a document: its text, writer and write time.

Exit codes:
  0 - Document printed
  1 - Document not found
  2 - Command error

Examples:
  docsync get doc-1
  docsync get doc-1 --raw --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmdContext(cmd), rootOpts, func(st store.Store) error {
				snap, err := st.Get(cmdContext(cmd), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return newFormatter(cmd, rootOpts).Fail(CodeDocumentNotFound,
						NewExitError(ExitFailure, fmt.Sprintf("document %q not found", args[0])))
				}
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read document", err)
				}
				return newFormatter(cmd, rootOpts).Success(viewOf(snap, raw))
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "include the document tree")
	return cmd
}

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Writer string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <document-id> <text>",
		Short: "Commit plain text as a document",
		Long: `Commit text as the new state of a document, one paragraph per line.
The write replaces the document and is pushed to every subscribed session.

Examples:
  docsync put doc-1 "Hello from doc-1!"
  docsync put doc-2 "Welcome to doc-2" --writer server-init`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Writer, "writer", "", "writer id (default: a fresh session id)")
	return cmd
}

func runPut(cmd *cobra.Command, opts *PutOptions, documentID, text string) error {
	writer := opts.Writer
	if writer == "" {
		writer = syncer.UUIDv7Generator{}.Generate()
	}
	ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.settings().CommitTimeout)
	defer cancel()

	return withStore(ctx, opts.RootOptions, func(st store.Store) error {
		snap := store.Snapshot{
			DocumentID: documentID,
			Content:    content.FromText(text),
			WriterID:   writer,
			WriteTime:  time.Now().UTC(),
		}
		f := newFormatter(cmd, opts.RootOptions)
		if err := st.Commit(ctx, snap); err != nil {
			return f.Fail(CodeCommitRejected, WrapExitError(ExitFailure, "failed to commit document", err))
		}
		opts.logger().Info("document committed", "doc", documentID, "writer", writer)
		return f.Success(viewOf(snap, false))
	})
}

// cmdContext returns the command's context, or Background when it was
// executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
