package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/editor"
	"github.com/roach88/docsync/internal/session"
	"github.com/roach88/docsync/internal/store"
)

// BootstrapWriter is the writer id of the seed documents.
const BootstrapWriter = "server-init"

// seedDocuments are the documents the demo edits.
var seedDocuments = []struct {
	ID   string
	Text string
}{
	{"doc-1", "Hello from doc-1!"},
	{"doc-2", "Welcome to doc-2"},
}

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Edit    string
	Timeout time.Duration
}

// EditorView is the final state of one demo editor.
type EditorView struct {
	Editor     string        `json:"editor"`
	DocumentID string        `json:"document_id"`
	SessionID  string        `json:"session_id"`
	Text       string        `json:"text"`
	Stats      session.Stats `json:"stats"`
}

// DemoResult is the outcome of the demo.
type DemoResult struct {
	Editors   []EditorView `json:"editors"`
	Converged bool         `json:"converged"`
}

func (r DemoResult) String() string {
	var b strings.Builder
	for _, e := range r.Editors {
		fmt.Fprintf(&b, "%-9s %-6s %q  (commits=%d applied=%d)\n",
			e.Editor, e.DocumentID, e.Text, e.Stats.Commits, e.Stats.Applied)
	}
	if r.Converged {
		b.WriteString("✓ editors on the same document converged")
	} else {
		b.WriteString("✗ editors on the same document diverged")
	}
	return b.String()
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run three editors against the configured store",
		Long: `Create doc-1 and doc-2 if they do not exist yet, open editor-1 and editor-2
on doc-1 and editor-3 on doc-2, type into editor-1 and wait until editor-2
shows the same text. editor-3 must be unaffected.

Exit codes:
  0 - Editors converged
  1 - Editors did not converge before the timeout
  2 - Command error

Examples:
  docsync demo
  docsync demo --edit " (reviewed)" --format json
  DOCSYNC_STORE_DRIVER=relay DOCSYNC_STORE_URL=ws://localhost:8790/ws docsync demo`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Edit, "edit", " Edited by editor 1.", "text editor-1 types at the end of doc-1")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for convergence")
	return cmd
}

type demoEditor struct {
	name string
	doc  string
	buf  *editor.Buffer
	sess *session.Session
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	cfg := opts.settings()
	logger := opts.logger()

	return withStore(ctx, opts.RootOptions, func(st store.Store) error {
		if err := bootstrap(ctx, st, logger); err != nil {
			return WrapExitError(ExitFailure, "failed to seed documents", err)
		}

		editors, err := openEditors(ctx, st, cfg, logger)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to open editors", err)
		}

		var wg sync.WaitGroup
		for _, e := range editors {
			wg.Add(1)
			go func(e *demoEditor) {
				defer wg.Done()
				if err := e.sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("session loop failed", "editor", e.name, "error", err)
				}
			}(e)
		}
		defer func() {
			for _, e := range editors {
				e.sess.Close()
			}
			wg.Wait()
		}()

		result, err := driveDemo(ctx, st, editors, opts)
		if err != nil {
			return err
		}
		if err := newFormatter(cmd, opts.RootOptions).Success(result); err != nil {
			return err
		}
		if !result.Converged {
			return NewExitError(ExitFailure, "editors did not converge")
		}
		return nil
	})
}

// bootstrap creates whichever demo documents are missing. Existing documents
// keep their content.
func bootstrap(ctx context.Context, st store.Store, logger *slog.Logger) error {
	ids, err := st.ListDocumentIDs(ctx)
	if err != nil {
		return err
	}

	for _, d := range seedDocuments {
		if slices.Contains(ids, d.ID) {
			logger.Debug("document already exists", "doc", d.ID)
			continue
		}
		err := st.Commit(ctx, store.Snapshot{
			DocumentID: d.ID,
			Content:    content.FromText(d.Text),
			WriterID:   BootstrapWriter,
			WriteTime:  time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", d.ID, err)
		}
		logger.Info("document seeded", "doc", d.ID)
	}
	return nil
}

func openEditors(ctx context.Context, st store.Store, cfg config.Config, logger *slog.Logger) ([]*demoEditor, error) {
	layout := []struct{ name, doc string }{
		{"editor-1", "doc-1"},
		{"editor-2", "doc-1"},
		{"editor-3", "doc-2"},
	}

	editors := make([]*demoEditor, 0, len(layout))
	for _, l := range layout {
		buf := editor.NewBuffer(nil)
		sess, err := session.New(ctx, st, buf, session.Config{
			DocumentID:       l.doc,
			DebounceInterval: cfg.DebounceInterval,
			CommitTimeout:    cfg.CommitTimeout,
		}, session.WithLogger(logger.With("editor", l.name)))
		if err != nil {
			for _, e := range editors {
				e.sess.Close()
			}
			return nil, fmt.Errorf("%s: %w", l.name, err)
		}
		editors = append(editors, &demoEditor{name: l.name, doc: l.doc, buf: buf, sess: sess})
	}
	return editors, nil
}

func driveDemo(ctx context.Context, st store.Store, editors []*demoEditor, opts *DemoOptions) (DemoResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// Every editor first shows what the store holds.
	loaded := waitFor(waitCtx, func() bool {
		for _, e := range editors {
			snap, err := st.Get(ctx, e.doc)
			if err != nil || !content.Equal(snap.Content, e.buf.Content()) {
				return false
			}
		}
		return true
	})
	if !loaded {
		return DemoResult{}, NewExitError(ExitFailure, "editors did not load their documents")
	}

	first, second, other := editors[0], editors[1], editors[2]
	otherBefore := other.buf.Text()

	// The end of the last paragraph's text, just before its closing token.
	if err := first.buf.Insert(first.buf.Size()-1, opts.Edit); err != nil {
		return DemoResult{}, WrapExitError(ExitFailure, "failed to edit", err)
	}
	want := first.buf.Text()

	converged := waitFor(waitCtx, func() bool {
		return second.buf.Text() == want && first.buf.Text() == want
	})

	result := DemoResult{Converged: converged && other.buf.Text() == otherBefore}
	for _, e := range editors {
		result.Editors = append(result.Editors, EditorView{
			Editor:     e.name,
			DocumentID: e.doc,
			SessionID:  e.sess.SessionID(),
			Text:       e.buf.Text(),
			Stats:      e.sess.Stats(),
		})
	}
	return result, nil
}

// waitFor polls cond until it holds or ctx is done.
func waitFor(ctx context.Context, cond func() bool) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return cond()
		case <-ticker.C:
		}
	}
}
