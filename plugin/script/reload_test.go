package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/observability"
)

const v1Source = `
function handle(args)
  return "v1"
end
`

const v2Source = `
function handle(args)
  return "v2"
end
`

const invalidSource = `
function handle(args
  return "broken"
end
`

// TestHotReloadSwapsOnValidChange covers the happy path of the five-step
// reload sequence.
func TestHotReloadSwapsOnValidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(v1Source), 0o644))

	rec := observability.NewRecorder()
	w, err := NewWatcher(WatcherConfig{Path: path, Limits: DefaultLimits(), Emitter: rec})
	require.NoError(t, err)

	out, err := w.Current().Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(v2Source), 0o644))

	require.Eventually(t, func() bool {
		out, err := w.Current().Invoke(context.Background(), "handle", nil)
		return err == nil && out == "v2"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, rec.CountByName("script_reloaded"))
}

// TestHotReloadRollsBackOnInvalidChange implements spec scenario S9.
func TestHotReloadRollsBackOnInvalidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(v1Source), 0o644))

	rec := observability.NewRecorder()
	w, err := NewWatcher(WatcherConfig{Path: path, Limits: DefaultLimits(), Emitter: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(invalidSource), 0o644))

	require.Eventually(t, func() bool {
		return rec.CountByName("script_reload_failed") > 0
	}, 2*time.Second, 10*time.Millisecond)

	out, err := w.Current().Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out, "active instance must remain v1 after a rejected reload")
}
