// Package client loads configuration and manages the exporters for every configured
// signal, rebuilding them when the configuration file changes.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/logging"
)

// Client provides access to the active runtime and useful helpers.
type Client struct {
	mu           sync.RWMutex
	runtime      *Runtime
	digest       string
	opts         options
	logger       logging.Adapter
	state        *ReloadState
	startTime    time.Time
	diagServer   *diagnostics.Server
	registration metric.Registration
	watchCancel  context.CancelFunc
	closeOnce    sync.Once
}

// Init loads configuration and builds the exporters. No network I/O happens until the
// first export. Callers must invoke Shutdown when finished.
func Init(ctx context.Context, opts ...Option) (*Client, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := settings.loadConfig(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "load config")
	}

	logger := settings.logger
	if !settings.loggerOverride {
		logger = logging.FromConfig(cfg.Logging)
	}

	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	settings.logger = logger

	rt, err := newRuntime(cfg, exporterLogger(logger, cfg.Logging), settings.meterProvider)
	if err != nil {
		return nil, ewrap.Wrap(err, "init runtime")
	}

	digest, err := configDigest(cfg)
	if err != nil {
		rt.Shutdown(ctx)

		return nil, err
	}

	client := &Client{
		runtime:   rt,
		digest:    digest,
		opts:      settings,
		logger:    logger,
		state:     &ReloadState{},
		startTime: time.Now().UTC(),
	}

	instruments, err := newClientInstruments(settings.meterProvider)
	if err != nil {
		rt.Shutdown(ctx)

		return nil, err
	}

	client.registration, err = instruments.register(client)
	if err != nil {
		rt.Shutdown(ctx)

		return nil, err
	}

	if cfg.Diagnostics.Enabled {
		server := diagnostics.NewServer(cfg.Diagnostics, client, diagnostics.WithLogger(logger))

		err = server.Start(ctx)
		if err != nil {
			_ = client.Shutdown(ctx)

			return nil, ewrap.Wrap(err, "start diagnostics server")
		}

		client.diagServer = server
	}

	err = client.startConfigWatcher(ctx)
	if err != nil {
		client.logger.Error(ctx, err, "config watcher disabled")
	}

	return client, nil
}

// Shutdown stops the watcher and diagnostics, then shuts down every exporter, waiting
// for in-flight exports until ctx ends.
func (c *Client) Shutdown(ctx context.Context) error {
	var errs []error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.watchCancel != nil {
			c.watchCancel()
		}
		c.mu.Unlock()

		if c.registration != nil {
			err := c.registration.Unregister()
			if err != nil {
				errs = append(errs, ewrap.Wrap(err, "unregister client metrics"))
			}
		}

		if c.diagServer != nil {
			err := c.diagServer.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}
	})

	err := c.Runtime().Shutdown(ctx).Wait(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return ewrap.Wrap(errors.Join(errs...), "shutdown client")
	}

	return nil
}

// Runtime exposes the active runtime.
func (c *Client) Runtime() *Runtime {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.runtime
}

// Config returns the active configuration snapshot.
func (c *Client) Config() config.Config {
	return c.Runtime().Config()
}

// Snapshot implements diagnostics.SnapshotProvider.
func (c *Client) Snapshot() diagnostics.Snapshot {
	rt := c.Runtime()
	cfg := rt.Config()

	return diagnostics.Snapshot{
		Protocol:          cfg.Exporter.Protocol,
		Endpoint:          cfg.Exporter.Endpoint,
		StartTime:         c.startTime,
		LastReloadTime:    rt.startTime,
		ConfigReloadCount: c.state.ConfigReloads(),
		Exporters:         rt.Statuses(),
	}
}

func (c *Client) startConfigWatcher(ctx context.Context) error {
	if !c.opts.watchConfig {
		return nil
	}

	path := c.opts.fileWatcherPath()
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ewrap.Wrap(err, "resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ewrap.Wrap(err, "create config watcher")
	}

	dir := filepath.Dir(abs)

	err = watcher.Add(dir)
	if err != nil {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.logger.Error(ctx, closeErr, "close config watcher after add failure")
		}

		return ewrap.Wrap(err, "watch config directory")
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.watchCancel = cancel
	c.mu.Unlock()

	go c.watchLoop(ctx, watcher, abs)

	return nil
}

// watchLoop monitors configuration changes and triggers runtime reloads.
//
//nolint:revive // cognitive-complexity: Breaking this up would reduce clarity.
func (c *Client) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.logger.Error(ctx, closeErr, "close config watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			c.logger.Info(ctx, "configuration change detected", attribute.String("path", target))
			c.reloadRuntime(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.logger.Error(ctx, err, "config watcher error")
		}
	}
}

func (c *Client) reloadRuntime(ctx context.Context) {
	cfg, err := c.opts.loadConfig(ctx)
	if err != nil {
		c.logger.Error(ctx, err, "reload config failed")

		return
	}

	digest, err := configDigest(cfg)
	if err != nil {
		c.logger.Error(ctx, err, "reload config failed")

		return
	}

	c.mu.RLock()
	unchanged := digest == c.digest
	c.mu.RUnlock()

	if unchanged {
		c.logger.Debug(ctx, "configuration unchanged, keeping exporters")

		return
	}

	if !c.opts.loggerOverride {
		if logger := logging.FromConfig(cfg.Logging); logger != nil {
			c.logger = logger
			c.opts.logger = logger
		}
	}

	rt, err := newRuntime(cfg, exporterLogger(c.logger, cfg.Logging), c.opts.meterProvider)
	if err != nil {
		c.logger.Error(ctx, err, "runtime rebuild failed")

		return
	}

	c.swapRuntime(ctx, rt, digest)
	c.state.IncrementConfigReloads()
	c.logger.Info(ctx, "runtime reloaded")
}

// swapRuntime installs newRuntime and shuts the previous one down, letting its
// in-flight exports finish.
func (c *Client) swapRuntime(ctx context.Context, newRuntime *Runtime, digest string) {
	c.mu.Lock()
	old := c.runtime
	c.runtime = newRuntime
	c.digest = digest
	c.mu.Unlock()

	if old != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
		defer cancel()

		err := old.Shutdown(shutdownCtx).Wait(shutdownCtx)
		if err != nil {
			c.logger.Error(shutdownCtx, err, "shutdown previous runtime")
		}
	}
}

// exporterLogger throttles exporter log lines per message using the configured budget.
func exporterLogger(base logging.Adapter, cfg config.LoggingConfig) logging.Adapter {
	return logging.NewThrottledAdapter(base,
		logging.WithThrottleBurst(cfg.ThrottleBurst),
		logging.WithThrottleInterval(cfg.ThrottleInterval),
	)
}

func configDigest(cfg config.Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", ewrap.Wrap(err, "encode config digest")
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:]), nil
}
