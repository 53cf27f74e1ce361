package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	res := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					res[m.Name] += dp.Value
				}
			}
		}
	}
	return res
}

func TestRegistryReportsToSDK(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewRegistry(provider)
	require.NoError(t, err)

	g := r.BufferedEvents()
	g.Add(5)
	g.Add(-2)
	assert.Equal(t, int64(3), g.Value())

	g.Set(10)
	assert.Equal(t, int64(10), g.Value())

	r.RoundDecided(4)
	r.RoundDecided(6)
	r.Discarded(2)
	r.Discarded(0)

	got := collect(t, reader)
	assert.Equal(t, int64(10), got[BufferedEventsName])
	assert.Equal(t, int64(2), got[RoundsDecidedName])
	assert.Equal(t, int64(10), got[ConsensusEventName])
	assert.Equal(t, int64(2), got[DiscardedName])
}

func TestNopTracksGaugeValue(t *testing.T) {
	r := Nop()
	g := r.BufferedEvents()
	g.Add(3)
	g.Set(1)
	assert.Equal(t, int64(1), g.Value())
	r.RoundDecided(1)
}
