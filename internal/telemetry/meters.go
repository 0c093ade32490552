package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/stockrag/market"
)

// =============================================================================
// 📈 OTel 指标
// =============================================================================

// Meters 解析与同步的 OTLP 指标，与 Prometheus Collector 并行上报。
// 遥测关闭时全局 MeterProvider 为 noop，记录为空操作。
type Meters struct {
	resolveTotal    metric.Int64Counter
	resolveDuration metric.Float64Histogram
	syncTotal       metric.Int64Counter
	syncDuration    metric.Float64Histogram
	syncVectors     metric.Int64Counter
}

// NewMeters mp 为 nil 时使用全局 MeterProvider
func NewMeters(mp metric.MeterProvider) (*Meters, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	m := &Meters{}
	var err error

	if m.resolveTotal, err = meter.Int64Counter("stockrag.resolve.total",
		metric.WithDescription("Resolutions by data type and source tier"),
		metric.WithUnit("{resolution}")); err != nil {
		return nil, err
	}
	if m.resolveDuration, err = meter.Float64Histogram("stockrag.resolve.duration",
		metric.WithDescription("Resolution latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 10)); err != nil {
		return nil, err
	}
	if m.syncTotal, err = meter.Int64Counter("stockrag.sync.total",
		metric.WithDescription("Sync runs by data type and outcome"),
		metric.WithUnit("{sync}")); err != nil {
		return nil, err
	}
	if m.syncDuration, err = meter.Float64Histogram("stockrag.sync.duration",
		metric.WithDescription("Sync latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.25, 1, 2.5, 5, 15, 30, 60)); err != nil {
		return nil, err
	}
	if m.syncVectors, err = meter.Int64Counter("stockrag.sync.vectors",
		metric.WithDescription("Vectors written by successful syncs"),
		metric.WithUnit("{vector}")); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveResolve 记录一次解析
func (m *Meters) ObserveResolve(dataType market.DataType, tier string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("data_type", string(dataType)),
		attribute.String("tier", tier),
	)
	m.resolveTotal.Add(ctx, 1, attrs)
	m.resolveDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveSync 记录一次同步，chunks 只进 Prometheus
func (m *Meters) ObserveSync(dataType market.DataType, outcome string, duration time.Duration, _, vectors int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("data_type", string(dataType)),
		attribute.String("outcome", outcome),
	)
	m.syncTotal.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
	if vectors > 0 {
		m.syncVectors.Add(ctx, int64(vectors), metric.WithAttributes(attribute.String("data_type", string(dataType))))
	}
}
