package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.EventsProcessed.WithLabelValues("Swap", "ok").Inc()
	m.EventsSkipped.WithLabelValues(SkipMissingEntity).Add(2)
	m.CursorBlock.Set(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues("Swap", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsSkipped.WithLabelValues(SkipMissingEntity)))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.CursorBlock))
}

func TestRecordHelpersUseDefaultMetrics(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.EventsSkipped.WithLabelValues(SkipChainCall))
	RecordSkip(SkipChainCall)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.EventsSkipped.WithLabelValues(SkipChainCall)))

	RecordCommit(1234, 10*time.Millisecond)
	assert.Equal(t, 1234.0, testutil.ToFloat64(DefaultMetrics.CursorBlock))

	UpdateDexStats(1, 2500.5, 10, 3)
	assert.Equal(t, 2500.5, testutil.ToFloat64(DefaultMetrics.TotalLiquidityUSD))
	assert.Equal(t, 3.0, testutil.ToFloat64(DefaultMetrics.PairCount))
}
