package notmuch

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// options holds per-database configuration.
type options struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:        slog.Default(),
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a database handle.
type Option func(*options)

// WithLogger sets the logger used for handle lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used to record
// engine call counts, durations and live handle counts. The global provider is
// used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
