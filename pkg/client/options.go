package client

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/logging"
)

// Option mutates initialization settings.
type Option func(*options)

type options struct {
	overrideConfig *config.Config
	loaders        []config.Loader
	logger         logging.Adapter
	loggerOverride bool
	watchConfig    bool
	meterProvider  metric.MeterProvider
}

func defaultOptions() options {
	return options{
		loaders: []config.Loader{
			config.FileLoader{},
			config.OTelEnvLoader{},
			config.EnvLoader{},
		},
		logger:        nil,
		watchConfig:   true,
		meterProvider: noop.NewMeterProvider(),
	}
}

func (o options) loadConfig(ctx context.Context) (config.Config, error) {
	if o.overrideConfig != nil {
		err := config.Validate(*o.overrideConfig)
		if err != nil {
			return config.Config{}, err
		}

		return *o.overrideConfig, nil
	}

	return config.Load(ctx, o.loaders...)
}

// WithConfig provides a fully resolved configuration and bypasses loaders.
func WithConfig(cfg config.Config) Option {
	return func(opt *options) {
		opt.overrideConfig = &cfg
	}
}

// WithLoaders replaces the default loader chain.
func WithLoaders(loaders ...config.Loader) Option {
	return func(opt *options) {
		opt.loaders = append([]config.Loader{}, loaders...)
	}
}

// WithLogger specifies the logging adapter used for client and exporter events.
func WithLogger(adapter logging.Adapter) Option {
	return func(opt *options) {
		opt.logger = adapter
		opt.loggerOverride = true
	}
}

// WithConfigWatcher toggles file-based config hot reload. Enabled by default.
func WithConfigWatcher(enabled bool) Option {
	return func(opt *options) {
		opt.watchConfig = enabled
	}
}

// WithMeterProvider sets the provider for the exporters' counters and the client's own
// instruments. Defaults to the no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opt *options) {
		if mp != nil {
			opt.meterProvider = mp
		}
	}
}

func (o options) fileWatcherPath() string {
	if o.overrideConfig != nil {
		return ""
	}

	for _, loader := range o.loaders {
		if fl, ok := loader.(config.FileLoader); ok {
			if fl.FS != nil {
				return ""
			}

			if fl.Path != "" {
				return fl.Path
			}

			return config.DefaultFileName
		}
	}

	return ""
}
