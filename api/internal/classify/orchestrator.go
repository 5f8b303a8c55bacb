// Package classify runs the tiered pipeline: normalize, ask the remote
// detector, fall back to the local model, and always produce a result.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"wasteiq/api/internal/detect"
	"wasteiq/api/internal/local"
	"wasteiq/api/internal/waste"
)

type Normalizer interface {
	Normalize(raw []byte) ([]byte, error)
}

type RemoteDetector interface {
	Detect(ctx context.Context, img []byte) detect.Outcome
}

type LocalClassifier interface {
	Classify(ctx context.Context, img []byte) (local.Prediction, error)
}

type CategoryMapper interface {
	MapToCategory(ctx context.Context, label string, allowRemote bool) waste.Category
}

// Recorder receives one call per finished classification.
type Recorder interface {
	RecordClassification(ctx context.Context, r waste.Result, elapsed time.Duration)
}

var errNoLocal = errors.New("local tier not configured")

// Deps are the collaborators of an Orchestrator. Remote and Local may be
// nil; Recorder and Tracer are optional.
type Deps struct {
	Normalizer Normalizer
	Remote     RemoteDetector
	Local      LocalClassifier
	Mapper     CategoryMapper
	Policy     Policy
	Recorder   Recorder
	Tracer     trace.Tracer
}

type Orchestrator struct {
	d Deps
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Policy == (Policy{}) {
		d.Policy = DefaultPolicy()
	}
	return &Orchestrator{d: d}
}

// Classify never fails: every tier error ends in a waste.Result, with mode
// "error" when nothing could answer.
func (o *Orchestrator) Classify(ctx context.Context, img []byte) (res waste.Result) {
	start := time.Now()
	ctx, span := o.d.Tracer.Start(ctx, "classify")
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classify: panic", "panic", r)
			res = waste.ErrorResult(fmt.Sprintf("internal error: %v", r))
		}
		span.SetAttributes(
			attribute.String("wasteiq.mode", string(res.Mode)),
			attribute.String("wasteiq.category", res.Category.String()),
			attribute.Float64("wasteiq.confidence", res.Confidence),
		)
		if res.Mode == waste.ModeError {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
		if o.d.Recorder != nil {
			o.d.Recorder.RecordClassification(ctx, res, time.Since(start))
		}
	}()

	norm, err := o.d.Normalizer.Normalize(img)
	if err != nil {
		slog.Warn("classify: normalize failed", "err", err)
		return waste.ErrorResult(err.Error())
	}

	var remoteErr error
	if o.d.Remote != nil {
		out := o.remote(ctx, norm)
		if out.Status == detect.StatusOK {
			return o.d.Policy.ApplyRemotePolicy(out.Candidate, func(label string) waste.Category {
				return o.mapCategory(ctx, label)
			})
		}
		remoteErr = out.Err
		slog.Warn("classify: remote tier failed, using local model",
			"status", out.Status.String(), "attempts", out.Attempts, "err", out.Err)
	}

	if err := ctx.Err(); err != nil {
		return waste.ErrorResult(fmt.Sprintf("cancelled: %v", err))
	}
	if o.d.Local == nil {
		return waste.ErrorResult(joinDiag(remoteErr, errNoLocal))
	}
	p, err := o.local(ctx, norm)
	if err != nil {
		slog.Error("classify: local tier failed", "err", err)
		return waste.ErrorResult(err.Error())
	}
	return waste.NewResult(p.ObjectName, p.Category, p.Confidence, p.Alternatives, waste.ModeLocal)
}

func (o *Orchestrator) remote(ctx context.Context, img []byte) (out detect.Outcome) {
	ctx, span := o.d.Tracer.Start(ctx, "classify.remote")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classify: remote tier panic", "panic", r)
			out = detect.Outcome{Status: detect.StatusServiceError, Err: fmt.Errorf("%w: panic: %v", detect.ErrService, r)}
		}
		span.SetAttributes(attribute.String("wasteiq.remote.status", out.Status.String()), attribute.Int("wasteiq.remote.attempts", out.Attempts))
	}()
	return o.d.Remote.Detect(ctx, img)
}

func (o *Orchestrator) local(ctx context.Context, img []byte) (p local.Prediction, err error) {
	ctx, span := o.d.Tracer.Start(ctx, "classify.local")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classify: local tier panic", "panic", r)
			err = fmt.Errorf("local tier panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
		}
	}()
	return o.d.Local.Classify(ctx, img)
}

func (o *Orchestrator) mapCategory(ctx context.Context, label string) (c waste.Category) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classify: mapper panic", "panic", r, "label", label)
			c = waste.General
		}
	}()
	if o.d.Mapper == nil {
		return waste.General
	}
	return o.d.Mapper.MapToCategory(ctx, label, true)
}

func joinDiag(errs ...error) string {
	msg := ""
	for _, err := range errs {
		if err == nil {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg
}
