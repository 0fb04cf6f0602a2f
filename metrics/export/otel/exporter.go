package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() jwtauth.MetricsSnapshot
	AuditDroppedByKind() map[jwtauth.AuditKind]uint64
}

// outcome is one counter observed on its operation's instrument.
type outcome struct {
	id    jwtauth.MetricID
	attrs metric.ObserveOption
}

type operationCounter struct {
	instrument metric.Int64ObservableCounter
	outcomes   []outcome
}

type latencyGauges struct {
	id      jwtauth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	le      [8]metric.ObserveOption
}

// OTelExporter observes jwtauth metrics through a single registered
// callback. Each engine operation is one counter with an "outcome"
// attribute; latency buckets are a gauge with an "le" attribute.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	operations   []operationCounter
	latency      []latencyGauges
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *jwtauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, op := range internaldefs.Operations {
		name := internaldefs.InstrumentName(op.Op)
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(op.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", name, err)
		}
		oc := operationCounter{instrument: ins}
		for _, def := range internaldefs.CounterDefs {
			if def.Operation != op.Op {
				continue
			}
			oc.outcomes = append(oc.outcomes, outcome{
				id:    def.ID,
				attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", def.Outcome))),
			})
		}
		exporter.operations = append(exporter.operations, oc)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		g := latencyGauges{id: def.ID}
		var err error
		g.buckets, err = meter.Int64ObservableGauge(def.InstrumentName+".bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge for %s: %w", def.InstrumentName, err)
		}
		g.count, err = meter.Int64ObservableGauge(def.InstrumentName+".count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge for %s: %w", def.InstrumentName, err)
		}
		for i, le := range internaldefs.HistogramBounds {
			g.le[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
		}
		exporter.latency = append(exporter.latency, g)
		observables = append(observables, g.buckets, g.count)
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedInstrument,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, op := range e.operations {
		for _, o := range op.outcomes {
			observer.ObserveInt64(op.instrument, int64(snapshot.Counters[o.id]), o.attrs)
		}
	}
	for _, g := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[g.id]))
		for i, n := range cumulative {
			observer.ObserveInt64(g.buckets, int64(n), g.le[i])
		}
		observer.ObserveInt64(g.count, int64(cumulative[len(cumulative)-1]))
	}
	for kind, n := range e.source.AuditDroppedByKind() {
		observer.ObserveInt64(e.auditDropped, int64(n),
			metric.WithAttributes(attribute.String(internaldefs.AuditKindAttr, string(kind))))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
