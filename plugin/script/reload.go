package script

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	lua "github.com/yuin/gopher-lua"

	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/synapseerr"
)

// DryRun, if set on WatcherConfig, is executed against each candidate
// engine during reload step 3 before it is allowed to become active.
type DryRun struct {
	Function string         `yaml:"function"`
	Args     map[string]any `yaml:"args"`
}

// WatcherConfig configures a hot-reload Watcher.
type WatcherConfig struct {
	Path   string `yaml:"path"`
	Limits Limits `yaml:"limits"`
	DryRun *DryRun `yaml:"dry_run"`
	// DebounceDelay coalesces bursts of filesystem events (default 100ms,
	// matching the teacher's file-watcher convention).
	DebounceDelay time.Duration `yaml:"debounce_delay"`

	// Host/Emitter are runtime collaborators wired in code, not
	// YAML-serializable settings.
	Host    HostFunctions
	Emitter observability.Emitter
}

// Watcher hot-reloads a script plugin's Engine from a watched file,
// implementing spec §4.6's copy→parse→dry-run→atomic-swap→delete sequence.
// In-flight Invoke calls against the previous Engine are unaffected by a
// swap: each call constructs its own lua.LState, so the old *Engine value
// simply finishes being referenced by whatever goroutines already hold it.
type Watcher struct {
	cfg     WatcherConfig
	current atomic.Pointer[Engine]
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher loads the initial engine from cfg.Path and prepares (but does
// not start) filesystem watching.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.Emitter == nil {
		cfg.Emitter = observability.NopEmitter{}
	}

	w := &Watcher{cfg: cfg}

	src, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, synapseerr.Wrap(component, synapseerr.KindPlugin, err, "reading initial script")
	}
	engine, err := NewEngine(string(src), cfg.Limits, cfg.Host)
	if err != nil {
		return nil, err
	}
	w.current.Store(engine)
	return w, nil
}

// Current returns the presently active Engine.
func (w *Watcher) Current() *Engine {
	return w.current.Load()
}

// Start begins watching cfg.Path for changes, reloading on each debounced
// write event until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return synapseerr.Wrap(component, synapseerr.KindPlugin, err, "starting script watcher")
	}
	if err := fsw.Add(filepath.Dir(w.cfg.Path)); err != nil {
		fsw.Close()
		return synapseerr.Wrap(component, synapseerr.KindPlugin, err, "watching script directory")
	}
	w.fsw = fsw

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(runCtx)
	return nil
}

// Stop ends the watch goroutine and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	var timer *time.Timer
	target := filepath.Clean(w.cfg.Path)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.DebounceDelay, func() {
				w.reload(ctx)
			})
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// reload runs the five-step sequence from spec §4.6. Any failure leaves
// Current() unchanged and emits a reload-failed event (scenario S9).
func (w *Watcher) reload(ctx context.Context) {
	shadow := w.cfg.Path + ".shadow"

	// 1. copy to shadow path
	src, err := os.ReadFile(w.cfg.Path)
	if err != nil {
		w.fail(ctx, "read", err)
		return
	}
	if err := os.WriteFile(shadow, src, 0o644); err != nil {
		w.fail(ctx, "copy", err)
		return
	}
	defer os.Remove(shadow) // 5. delete shadow, on every exit path

	// 2. parse (syntax check) on the shadow
	if err := syntaxCheck(string(src)); err != nil {
		w.fail(ctx, "parse", err)
		return
	}

	candidate, err := NewEngine(string(src), w.cfg.Limits, w.cfg.Host)
	if err != nil {
		w.fail(ctx, "validate", err)
		return
	}

	// 3. dry run against a test input if configured
	if w.cfg.DryRun != nil {
		if _, err := candidate.Invoke(ctx, w.cfg.DryRun.Function, w.cfg.DryRun.Args); err != nil {
			w.fail(ctx, "dry_run", err)
			return
		}
	}

	// 4. atomic swap
	w.current.Store(candidate)
	w.cfg.Emitter.Emit(ctx, observability.New(observability.CategoryPlugin, "script_reloaded", map[string]any{
		"path": w.cfg.Path,
	}))
}

func (w *Watcher) fail(ctx context.Context, step string, cause error) {
	w.cfg.Emitter.Emit(ctx, observability.New(observability.CategoryPlugin, "script_reload_failed", map[string]any{
		"path": w.cfg.Path, "step": step, "error": cause.Error(),
	}))
}

// syntaxCheck compiles source without executing it, using gopher-lua's
// load-without-run entrypoint, so a malformed shadow file never reaches
// the active instance (spec §4.6 step 2).
func syntaxCheck(source string) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	_, err := L.LoadString(source)
	return err
}
