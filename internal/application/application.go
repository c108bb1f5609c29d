package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	"github.com/Zhima-Mochi/foodcart/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

// Probe holds the RED instruments shared by the use cases of one service.
type Probe struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewProbe(tel observability.Observability, service string) *Probe {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Probe{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Probe) Logger() observability.Logger { return p.log }

// Run is one in-flight use case execution.
type Run struct {
	probe   *Probe
	span    trace.Span
	log     observability.Logger
	useCase string
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Start opens a span named UC.<name> and binds a logger carrying use_case,
// trace_id and span_id to the returned context.
func (p *Probe) Start(ctx context.Context, useCase, name string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := p.tracer.Start(ctx, SpanPrefix+name, attrs...)

	fields := []observability.Field{observability.F("use_case", useCase)}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx, logger := logctx.Enrich(ctx, p.log, fields...)

	return ctx, &Run{
		probe:   p,
		span:    span,
		log:     logger,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.log }

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run as failed with a machine-readable status.
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// Note sets the status without changing the outcome.
func (r *Run) Note(status string) {
	r.status = status
}

func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// End closes the span, records the RED metrics and logs use_case_done.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == "success" {
		r.Fail(strings.ToUpper(string(failure.KindOf(err))))
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.probe.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.probe.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.log.Info("use_case_done", fields...)
}

// External records one call to a collaborator outside the process.
func (p *Probe) External(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case isContextErr(err):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	p.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
