package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

// Source is what the exporter observes. [*goToken.Engine] satisfies it.
type Source interface {
	MetricsSnapshot() goToken.MetricsSnapshot
	AuditDropped() uint64
}

type family struct {
	def        internaldefs.Family
	instrument metric.Int64ObservableCounter
	attrs      []metric.ObserveOption
}

// Exporter reports engine metrics to an OpenTelemetry meter until Close.
type Exporter struct {
	source       Source
	registration metric.Registration
	families     []family
	buckets      metric.Int64ObservableGauge
	count        metric.Int64ObservableGauge
	bucketAttrs  [8]metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// New registers the goToken instruments on meter. The caller owns the
// MeterProvider; Close unregisters the callback but leaves the instruments.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		f := family{def: def, instrument: ins, attrs: make([]metric.ObserveOption, len(def.Samples))}
		for i, s := range def.Samples {
			if def.Label != "" {
				f.attrs[i] = metric.WithAttributes(attribute.String(def.Label, s.Value))
			}
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	latency := internaldefs.LatencyHistogram
	var err error
	e.buckets, err = meter.Int64ObservableGauge(latency.Name+"_bucket",
		metric.WithDescription(latency.Help+" Cumulative count per upper bound."),
		metric.WithUnit("{validation}"))
	if err != nil {
		return nil, fmt.Errorf("gauge %s_bucket: %w", latency.Name, err)
	}
	e.count, err = meter.Int64ObservableGauge(latency.Name+"_count",
		metric.WithDescription("Validations timed."),
		metric.WithUnit("{validation}"))
	if err != nil {
		return nil, fmt.Errorf("gauge %s_count: %w", latency.Name, err)
	}
	for i, le := range internaldefs.HistogramBounds {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	observables = append(observables, e.buckets, e.count, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, f := range e.families {
		for i, s := range f.def.Samples {
			v := int64(snap.Counters[s.ID])
			if f.attrs[i] == nil {
				o.ObserveInt64(f.instrument, v)
				continue
			}
			o.ObserveInt64(f.instrument, v, f.attrs[i])
		}
	}

	if raw, ok := snap.Histograms[internaldefs.LatencyHistogram.ID]; ok {
		cumulative := internaldefs.CumulativeBuckets(raw)
		for i, n := range cumulative {
			o.ObserveInt64(e.buckets, int64(n), e.bucketAttrs[i])
		}
		o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close stops observation.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
