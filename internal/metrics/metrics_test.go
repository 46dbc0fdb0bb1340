package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterRecordsFoldOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	exporter, err := NewWithReader(reader)
	require.NoError(t, err)
	ctx := context.Background()

	exporter.EventFolded(ctx, "live", protocol.EventTypeTurn)
	exporter.EventFolded(ctx, "live", protocol.EventTypeTurn)
	exporter.EventFolded(ctx, "replay", protocol.EventTypeInit)
	exporter.EventRejected(ctx, "live", protocol.EventTypeTurn, "malformed")
	exporter.SessionEnded(ctx, "live", "DEAL_REACHED", 6)

	got := collect(t, reader)

	folded, ok := got["negotiator_events_folded_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var liveTurns int64
	for _, dp := range folded.DataPoints {
		mode, _ := dp.Attributes.Value(attribute.Key("mode"))
		typ, _ := dp.Attributes.Value(attribute.Key("event_type"))
		if mode.AsString() == "live" && typ.AsString() == "turn" {
			liveTurns = dp.Value
		}
	}
	assert.Equal(t, int64(2), liveTurns)
	assert.Len(t, folded.DataPoints, 2)

	rejected, ok := got["negotiator_events_rejected_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rejected.DataPoints, 1)
	reason, _ := rejected.DataPoints[0].Attributes.Value(attribute.Key("reason"))
	assert.Equal(t, "malformed", reason.AsString())

	rounds, ok := got["negotiator_session_rounds"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, rounds.DataPoints, 1)
	assert.Equal(t, uint64(1), rounds.DataPoints[0].Count)
	assert.Equal(t, int64(6), rounds.DataPoints[0].Sum)

	require.NoError(t, exporter.Close(ctx))
}

func TestNewWithoutEndpointIsNoOp(t *testing.T) {
	rec, err := New(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := rec.(*NoOp)
	assert.True(t, ok)

	rec.EventFolded(context.Background(), "live", protocol.EventTypeEnd)
	assert.NoError(t, rec.Close(context.Background()))

	_, err = NewExporter(context.Background(), Config{})
	assert.Error(t, err)
}
