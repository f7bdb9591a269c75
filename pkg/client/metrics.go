package client

import (
	"context"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/hyp3rd/otlpexport/client"

	// ConfigReloadsMetric reports the cumulative number of configuration reloads applied.
	ConfigReloadsMetric = "otlpexport.client.config.reloads"
	// ExporterEnabledMetric reports 1 for every configured signal exporter.
	ExporterEnabledMetric = "otlpexport.client.exporter.enabled"
)

type clientInstruments struct {
	meter           metric.Meter
	configReloads   metric.Int64ObservableCounter
	exporterEnabled metric.Int64ObservableGauge
}

func newClientInstruments(mp metric.MeterProvider) (*clientInstruments, error) {
	meter := mp.Meter(meterName)

	configReloads, err := meter.Int64ObservableCounter(
		ConfigReloadsMetric,
		metric.WithDescription("Cumulative number of configuration reloads applied by the client"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create config reloads counter")
	}

	exporterEnabled, err := meter.Int64ObservableGauge(
		ExporterEnabledMetric,
		metric.WithDescription("Status (0=disabled,1=enabled) of each signal exporter"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create exporter enabled gauge")
	}

	return &clientInstruments{
		meter:           meter,
		configReloads:   configReloads,
		exporterEnabled: exporterEnabled,
	}, nil
}

func (ci *clientInstruments) register(c *Client) (metric.Registration, error) {
	reg, err := ci.meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(ci.configReloads, c.state.ConfigReloads())

			rt := c.Runtime()
			ci.observeExporter(observer, "span", rt.Traces() != nil)
			ci.observeExporter(observer, "metric", rt.Metrics() != nil)
			ci.observeExporter(observer, "log", rt.Logs() != nil)

			return nil
		},
		ci.configReloads,
		ci.exporterEnabled,
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "register client metrics callback")
	}

	return reg, nil
}

func (ci *clientInstruments) observeExporter(observer metric.Observer, signal string, enabled bool) {
	observer.ObserveInt64(
		ci.exporterEnabled,
		boolToInt(enabled),
		metric.WithAttributes(attribute.String("signal", signal)),
	)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}

	return 0
}
