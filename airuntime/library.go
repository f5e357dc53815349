package airuntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"libai/backend"
	"libai/backend/fmshim"
	"libai/backend/openaicompat"
	"libai/core"
	"libai/history"
	"libai/logging"
	"libai/shutdown"
	"libai/telemetry"
)

// Shutdown priorities: history flushes before the backend closes, and the
// log sink syncs last so teardown itself is still logged.
const (
	shutdownPriorityHistory = 10
	shutdownPriorityBackend = 20
	shutdownPriorityLogs    = 30
)

// Library is one initialized instance of the runtime: a backend engine,
// its contexts, and the supporting stores. Multiple independent Library
// values may coexist in a process; the C surface guards a single
// process-wide one.
//
// Example:
//
//	lib, err := airuntime.New(core.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
//
//	ctx, _ := lib.NewContext()
//	sid, _ := ctx.NewSession(nil)
//	reply, _ := ctx.Generate(context.Background(), sid, "Hello", nil)
type Library struct {
	cfg     core.Config
	engine  backend.Engine
	log     *logging.Logger
	store   *history.Store
	metrics *telemetry.Aggregator
	reg     *shutdown.Registry

	mu          sync.Mutex
	closed      bool
	contexts    map[uint64]*Context
	nextContext uint64
}

// New validates the configuration, wires the selected backend with its
// concurrency gate, and returns a ready library instance.
func New(cfg core.Config) (*Library, error) {
	cfg = core.ApplyDefaults(cfg)
	if err := core.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}
	engine = backend.NewGate(engine, cfg.MaxConcurrent)

	lib := &Library{
		cfg:      cfg,
		engine:   engine,
		log:      log,
		metrics:  telemetry.NewAggregator(),
		reg:      shutdown.NewRegistry(0),
		contexts: make(map[uint64]*Context),
	}

	if cfg.HistoryPath != "" {
		store, err := history.Open(history.Config{
			Path: cfg.HistoryPath,
			OnWriteError: func(err error) {
				log.Error("history write failed", zap.Error(err))
			},
		})
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		lib.store = store
		lib.reg.Register("history", shutdownPriorityHistory, func(ctx context.Context) error {
			return store.Close()
		})
	}

	lib.reg.Register("backend", shutdownPriorityBackend, func(ctx context.Context) error {
		return engine.Close()
	})
	lib.reg.Register("logs", shutdownPriorityLogs, func(ctx context.Context) error {
		// Sync on stdout fails on some platforms; the file sink is what
		// matters and lumberjack writes through, so fold the error away.
		_ = log.Sync()
		return nil
	})

	log.Info("library initialized",
		zap.String("backend", engine.Kind()),
		zap.String("version", core.GetVersion()),
		zap.Bool("history", lib.store != nil),
	)
	return lib, nil
}

// buildLogger returns a file-backed logger when logging is enabled and a
// nop logger otherwise, so embedders never get surprise log files.
func buildLogger(cfg core.Config) (*logging.Logger, error) {
	if !cfg.LogEnabled {
		return logging.NewNop(), nil
	}
	defaultLevel := logging.InfoLevel
	if cfg.Development {
		defaultLevel = logging.DebugLevel
	}
	level := logging.ParseLevel(cfg.LogLevel, defaultLevel)
	return logging.NewLoggerAtLevel(cfg.Development, cfg.LogFilePath, level)
}

// buildEngine constructs the configured backend. Config validation has
// already rejected unknown kinds.
func buildEngine(cfg core.Config) (backend.Engine, error) {
	switch cfg.Backend {
	case core.BackendEcho:
		return backend.NewEcho(), nil
	case core.BackendOpenAI:
		return openaicompat.New(openaicompat.Config{
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			APIKey:  cfg.OpenAIAPIKey,
		})
	case core.BackendFMShim:
		return fmshim.New(fmshim.Config{
			ShimPath:     cfg.ShimPath,
			Instructions: cfg.DefaultSystemPrompt,
		})
	default:
		return nil, core.ErrInvalidBackend(cfg.Backend)
	}
}

// Version returns the build version string. Pure; callable in any state.
func (l *Library) Version() string {
	return core.GetVersion()
}

// CheckAvailability probes the backend. The result is produced fresh on
// every call and never cached here. After Close the probe reports
// Unavailable with a reason rather than an error.
func (l *Library) CheckAvailability(ctx context.Context) (backend.Availability, string) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return backend.Unavailable, "library has been closed"
	}
	return l.engine.Probe(ctx)
}

// NewContext allocates a context with an empty session map and zeroed
// stats. Fails with ErrNotInitialized after Close.
func (l *Library) NewContext() (*Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, core.NewRuntimeError("new_context", core.ErrNotInitialized, "library has been closed")
	}
	l.nextContext++
	c := newContext(l.nextContext, l)
	l.contexts[c.id] = c
	l.log.Info("context created", zap.Uint64("context_id", c.id))
	return c, nil
}

// releaseContext unregisters a closing context.
func (l *Library) releaseContext(id uint64) {
	l.mu.Lock()
	delete(l.contexts, id)
	l.mu.Unlock()
}

// ContextCount returns the number of live contexts.
func (l *Library) ContextCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.contexts)
}

// Telemetry returns a snapshot of the cross-context request aggregates.
func (l *Library) Telemetry() telemetry.Snapshot {
	return l.metrics.Snapshot()
}

// History returns the persistence store, or nil when history is disabled.
func (l *Library) History() *history.Store {
	return l.store
}

// Config returns the effective configuration the library was built with.
func (l *Library) Config() core.Config {
	return l.cfg
}

// Backend returns the active engine kind.
func (l *Library) Backend() string {
	return l.engine.Kind()
}

// Close tears the library down: history flush, backend close, log sync,
// in that order. It fails with ErrContextsStillOpen while any context is
// alive, leaving the library usable; a second successful-path Close fails
// with ErrNotInitialized.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return core.NewRuntimeError("close", core.ErrNotInitialized, "library already closed")
	}
	if n := len(l.contexts); n > 0 {
		l.mu.Unlock()
		return core.NewRuntimeError("close", core.ErrContextsStillOpen,
			fmt.Sprintf("%d context(s) still open", n))
	}
	l.closed = true
	l.mu.Unlock()

	l.log.Info("library closing")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if errs := l.reg.Run(ctx); len(errs) > 0 {
		return fmt.Errorf("shutdown completed with errors: %w", errors.Join(errs...))
	}
	return nil
}
