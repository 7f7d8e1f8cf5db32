//go:build !notmuch || !cgo

package notmuch

import (
	"context"
	"testing"

	"github.com/nalgeon/be"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect returns the sum of all int64 sum data points named name whose
// attributes include every attribute in want.
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	be.Err(t, reader.Collect(context.Background(), &rm), nil)

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			be.True(t, ok)
		points:
			for _, dp := range sum.DataPoints {
				for _, kv := range want {
					if v, ok := dp.Attributes.Value(kv.Key); !ok || v.Emit() != kv.Value.Emit() {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	db, err := Create(t.TempDir(), WithMeterProvider(mp))
	be.Err(t, err, nil)
	be.Equal(t, collect(t, reader, "notmuch.handles.live"), int64(1))
	be.Equal(t, collect(t, reader, "notmuch.native.calls", attribute.String("op", "create"), attribute.String("status", "ok")), int64(1))

	q, err := db.CreateQuery("tag:inbox")
	be.Err(t, err, nil)
	_, err = q.CountMessages()
	be.Err(t, err, nil)
	_, err = q.CountMessages()
	be.Err(t, err, nil)
	q.Destroy()
	be.Equal(t, collect(t, reader, "notmuch.native.calls", attribute.String("op", "count messages")), int64(2))

	bad, err := db.CreateQuery("nosuchprefix:x")
	be.Err(t, err, nil)
	_, err = bad.CountMessages()
	be.Err(t, err, StatusBadQuerySyntax)
	bad.Destroy()
	be.Equal(t, collect(t, reader, "notmuch.native.calls",
		attribute.String("op", "count messages"), attribute.String("status", StatusBadQuerySyntax.String())), int64(1))

	be.Err(t, db.Close(), nil)
	be.Equal(t, collect(t, reader, "notmuch.handles.live"), int64(0))
}
