package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/relay"
	"github.com/roach88/docsync/internal/store"
)

func TestServe_RelaysStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Addr:        "127.0.0.1:0",
		ready:       func(addr string) { ready <- addr },
	}

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	client, err := relay.Dial(ctx, "ws://"+addr+"/ws", nil)
	require.NoError(t, err)

	snap := store.Snapshot{
		DocumentID: "doc-1",
		Content:    content.FromText("over the wire"),
		WriterID:   "remote",
		WriteTime:  time.Now().UTC(),
	}
	require.NoError(t, client.Commit(ctx, snap))

	got, err := client.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "over the wire", content.Text(got.Content))
	assert.Equal(t, "remote", got.WriterID)
	require.NoError(t, client.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.Contains(t, out.String(), "Relay listening on "+addr+" (store: memory)")
}

func TestServe_RejectsRelayDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverRelay
	cfg.Store.URL = "ws://localhost:8790/ws"

	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text", Config: cfg}}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
