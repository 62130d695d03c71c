// Package monitor runs every node under the resource probe, collects the
// probe's measurements into the node's category, and retries nodes that
// overflowed their limits with a larger allocation.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"go.uber.org/zap"

	"github.com/danshapiro/flowmon/internal/rmonitor/procutil"
	"github.com/danshapiro/flowmon/internal/rmonitor/statstore"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
	"github.com/danshapiro/flowmon/internal/workflow/hook"
)

const ListenerName = "Resource Monitor"

// Monitor is the resource monitoring hook.Listener.
type Monitor struct {
	cfg      *Config
	prefixes PrefixResolver

	locator procutil.Locator
	logger  *slog.Logger
	zap     *zap.Logger
	diag    io.Writer

	store     statstore.Store
	ownsStore bool
}

var _ hook.Listener = (*Monitor)(nil)

type Option func(*Monitor)

// WithLogger sets the debug channel.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithLocator(l procutil.Locator) Option {
	return func(m *Monitor) { m.locator = l }
}

// WithDiagnostics sets where user-facing failure reports are printed.
// The default is stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(m *Monitor) {
		if w != nil {
			m.diag = w
		}
	}
}

// WithStatsStore publishes every measurement to s. The caller keeps
// ownership of s.
func WithStatsStore(s statstore.Store) Option {
	return func(m *Monitor) { m.store = s }
}

// WithZapLogger sets the logger handed to the etcd client.
func WithZapLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.zap = l }
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		locator: procutil.DefaultLocator(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		diag:    os.Stderr,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewWithConfig returns a monitor that is already created.
func NewWithConfig(cfg *Config, opts ...Option) *Monitor {
	m := New(opts...)
	m.install(cfg)
	return m
}

func (m *Monitor) install(cfg *Config) {
	m.cfg = cfg
	m.prefixes = PrefixResolver{Template: cfg.LogPrefixTemplate}
}

func (m *Monitor) Name() string { return ListenerName }

// Config returns the active configuration, or nil before Create.
func (m *Monitor) Config() *Config { return m.cfg }

func (m *Monitor) config() (*Config, error) {
	if m == nil || m.cfg == nil {
		return nil, fmt.Errorf("resource monitor: not created")
	}
	return m.cfg, nil
}

// Create validates the hook arguments and locates the probe. Every error it
// returns is a *ConfigurationError.
func (m *Monitor) Create(args hook.Args) error {
	opts, err := OptionsFromArgs(args)
	if err != nil {
		return err
	}
	return m.CreateFromOptions(opts)
}

func (m *Monitor) CreateFromOptions(opts *Options) error {
	cfg, err := NewConfig(opts, m.locator)
	if err != nil {
		return err
	}
	if m.store == nil && cfg.Stats.Enabled() {
		st, err := statstore.NewEtcdStore(statstore.EtcdConfig{
			Endpoints:   cfg.Stats.EtcdEndpoints,
			Prefix:      cfg.Stats.Prefix,
			DialTimeout: cfg.Stats.DialTimeout(),
			Logger:      m.zap,
		})
		if err != nil {
			return &ConfigurationError{Field: "stats.etcd_endpoints", Err: err}
		}
		m.store = st
		m.ownsStore = true
	}
	m.install(cfg)
	return nil
}

// Destroy releases the configuration and any store Create opened. It is
// safe to call more than once, or without Create.
func (m *Monitor) Destroy() error {
	if m == nil {
		return nil
	}
	var err error
	if m.ownsStore && m.store != nil {
		err = m.store.Close()
		m.store = nil
		m.ownsStore = false
	}
	m.cfg = nil
	m.prefixes = PrefixResolver{}
	return err
}

// DagStart registers the probe with the workflow and makes sure the log
// directory exists. A directory that already exists is fine; another
// failure is reported without stopping the workflow.
func (m *Monitor) DagStart(ctx context.Context, w *dag.Workflow) error {
	cfg, err := m.config()
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("resource monitor: dag_start without workflow")
	}
	w.LookupOrCreateFile(cfg.ProbeExecutable, dag.FileGlobal)

	dir := cfg.path(cfg.LogDir)
	created, err := ensureDir(dir)
	if err != nil {
		w.AppendEvent(map[string]any{
			"event": "monitor_dir_error",
			"path":  dir,
			"error": err.Error(),
		})
		m.debug(ctx, "could not create monitor output directory", "path", dir, "error", err)
		return &EnvironmentError{Op: "mkdir", Path: dir, Err: err}
	}
	f := w.LookupOrCreateFile(cfg.LogDir, dag.FileOutput)
	w.LogFileState(f, dag.FileExists)
	w.AppendEvent(map[string]any{
		"event":   "monitor_dir_created",
		"path":    dir,
		"created": created,
	})
	return nil
}

// ensureDir creates dir, with parents when needed. It reports whether this
// call created it.
func ensureDir(dir string) (bool, error) {
	err := os.Mkdir(dir, 0o777)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return false, err
		}
		return true, nil
	case errors.Is(err, fs.ErrExist):
		fi, statErr := os.Stat(dir)
		if statErr != nil {
			return false, statErr
		}
		if !fi.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	default:
		return false, err
	}
}

func (m *Monitor) debug(ctx context.Context, msg string, args ...any) {
	m.logger.DebugContext(ctx, msg, args...)
}
