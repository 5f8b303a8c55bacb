package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"wasteiq/api/internal/util"
	"wasteiq/api/internal/waste"
)

// Status is the tier-level verdict of a detection.
type Status int

const (
	StatusOK Status = iota
	StatusRateLimited
	StatusServiceError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "service_error"
	}
}

// Outcome is what the remote tier hands to the orchestrator. Candidate is
// set only when Status is StatusOK; Err only otherwise.
type Outcome struct {
	Status    Status
	Candidate waste.Candidate
	Err       error
	Attempts  int  // provider calls made, re-ask included
	Reasked   bool // the re-ask answer replaced the first one
}

func Ok(c waste.Candidate, attempts int) Outcome {
	return Outcome{Status: StatusOK, Candidate: c, Attempts: attempts}
}

func failed(err error, attempts int) Outcome {
	if errors.Is(err, ErrRateLimited) {
		return Outcome{Status: StatusRateLimited, Err: err, Attempts: attempts}
	}
	return Outcome{Status: StatusServiceError, Err: err, Attempts: attempts}
}

// Prompts are the two instructions sent with the image.
type Prompts struct {
	Detect string
	Retry  string
}

type Options struct {
	Timeout         time.Duration   // per provider call; default 10s
	Backoff         []time.Duration // sleeps between rate-limited attempts; default 1s, 2s
	VagueRetryBelow float64         // re-ask below this confidence; default 60
	Prompts         Prompts
	Vague           *waste.VagueDetector
	Limiter         *rate.Limiter // optional client-side spacing
	// OnAttempt is called after every provider call with its status.
	OnAttempt func(ctx context.Context, s Status)
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Backoff == nil {
		o.Backoff = []time.Duration{time.Second, 2 * time.Second}
	}
	if o.VagueRetryBelow <= 0 {
		o.VagueRetryBelow = 60
	}
	if o.Prompts.Detect == "" {
		o.Prompts.Detect = DetectPrompt
	}
	if o.Prompts.Retry == "" {
		o.Prompts.Retry = RetryPrompt
	}
	if o.Vague == nil {
		o.Vague = waste.DefaultVague()
	}
}

// Detector drives one Engine: rate-limit retries, timeouts and the single
// re-ask for vague answers.
type Detector struct {
	engine Engine
	opts   Options
}

func NewDetector(engine Engine, opts Options) *Detector {
	opts.defaults()
	return &Detector{engine: engine, opts: opts}
}

// Detect asks the engine for the dominant object of img (already normalized).
func (d *Detector) Detect(ctx context.Context, img []byte) Outcome {
	mime := util.SniffMimeHTTP(img)
	first, n, err := d.call(ctx, img, mime, d.opts.Prompts.Detect)
	if err != nil {
		return failed(err, n)
	}
	if !d.needsReask(first) {
		return Ok(first, n)
	}

	slog.Info("detect: vague answer, asking again",
		"engine", d.engine.Name(), "label", first.Label, "confidence", first.Confidence)
	second, m, err := d.call(ctx, img, mime, d.opts.Prompts.Retry)
	n += m
	if err != nil {
		// the first answer is still usable
		slog.Warn("detect: re-ask failed", "engine", d.engine.Name(), "err", err)
		return Ok(first, n)
	}
	if second.Label == "" || d.opts.Vague.IsVague(second.Label) {
		return Ok(first, n)
	}
	out := Ok(second, n)
	out.Reasked = true
	return out
}

func (d *Detector) needsReask(c waste.Candidate) bool {
	return c.Label == "" || d.opts.Vague.IsVague(c.Label) || c.Confidence < d.opts.VagueRetryBelow
}

// call makes up to 1+len(Backoff) attempts while the provider keeps
// answering with a rate limit. Any other failure stops at once.
func (d *Detector) call(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, int, error) {
	attempts := 0
	var lastErr error
	for i := 0; i <= len(d.opts.Backoff); i++ {
		attempts++
		c, err := d.once(ctx, img, mime, prompt)
		if err == nil {
			d.observe(ctx, StatusOK)
			return c, attempts, nil
		}
		err = ClassifyError(err)
		if !errors.Is(err, ErrRateLimited) {
			d.observe(ctx, StatusServiceError)
			return waste.Candidate{}, attempts, err
		}
		d.observe(ctx, StatusRateLimited)
		lastErr = err
		if i == len(d.opts.Backoff) {
			break
		}
		slog.Warn("detect: rate limited",
			"engine", d.engine.Name(), "attempt", attempts, "wait", d.opts.Backoff[i])
		if err := Sleep(ctx, d.opts.Backoff[i]); err != nil {
			return waste.Candidate{}, attempts, fmt.Errorf("%w: %v", ErrService, err)
		}
	}
	return waste.Candidate{}, attempts, fmt.Errorf("rate limit persisted after %d attempts: %w", attempts, lastErr)
}

func (d *Detector) once(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, error) {
	if d.opts.Limiter != nil {
		if err := d.opts.Limiter.Wait(ctx); err != nil {
			return waste.Candidate{}, fmt.Errorf("%w: limiter: %v", ErrService, err)
		}
	}
	cctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	c, err := d.engine.Detect(cctx, img, mime, prompt)
	if err != nil {
		return waste.Candidate{}, err
	}
	return waste.NewCandidate(c.Label, c.Confidence), nil
}

func (d *Detector) observe(ctx context.Context, s Status) {
	if d.opts.OnAttempt != nil {
		d.opts.OnAttempt(ctx, s)
	}
}
