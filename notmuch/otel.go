package notmuch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/spachava753/mailidx/notmuch"

// instruments records engine activity for one database.
type instruments struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	live     metric.Int64UpDownCounter
	backend  attribute.KeyValue
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	inst := &instruments{backend: attribute.String("notmuch.backend", native.name())}

	var err error
	inst.calls, err = meter.Int64Counter(
		"notmuch.native.calls",
		metric.WithDescription("Number of calls into the index engine"),
	)
	if err != nil {
		return nil, err
	}

	inst.duration, err = meter.Float64Histogram(
		"notmuch.native.duration",
		metric.WithDescription("Duration of calls into the index engine"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inst.live, err = meter.Int64UpDownCounter(
		"notmuch.handles.live",
		metric.WithDescription("Number of open database handles"),
	)
	if err != nil {
		return nil, err
	}

	return inst, nil
}

// record notes one engine call that started at start and ended with err.
func (i *instruments) record(op string, start time.Time, err error) {
	if i == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if st := StatusOf(err); st != StatusSuccess {
			status = st.String()
		}
	}
	attrs := metric.WithAttributes(i.backend, attribute.String("op", op), attribute.String("status", status))
	ctx := context.Background()
	i.calls.Add(ctx, 1, attrs)
	i.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (i *instruments) opened() {
	if i != nil {
		i.live.Add(context.Background(), 1, metric.WithAttributes(i.backend))
	}
}

func (i *instruments) destroyed() {
	if i != nil {
		i.live.Add(context.Background(), -1, metric.WithAttributes(i.backend))
	}
}
