package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wasteiq/api/internal/waste"
)

type reply struct {
	label string
	conf  float64
	err   error
}

// scriptEngine answers from a fixed script and records the prompts it saw.
type scriptEngine struct {
	mu      sync.Mutex
	script  []reply
	prompts []string
}

func (s *scriptEngine) Name() string     { return "script" }
func (s *scriptEngine) GetModel() string { return "test" }

func (s *scriptEngine) Detect(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.script) == 0 {
		return waste.Candidate{}, errors.New("script exhausted")
	}
	r := s.script[0]
	s.script = s.script[1:]
	if r.err != nil {
		return waste.Candidate{}, r.err
	}
	return waste.NewCandidate(r.label, r.conf), nil
}

func (s *scriptEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

var fastBackoff = []time.Duration{time.Millisecond, time.Millisecond}

var errQuota = &googleapi.Error{Code: 429, Message: "quota"}

func TestDetectClearAnswer(t *testing.T) {
	t.Parallel()

	eng := &scriptEngine{script: []reply{{label: "smartphone", conf: 93}}}
	out := NewDetector(eng, Options{Backoff: fastBackoff}).Detect(context.Background(), []byte{0xFF, 0xD8})
	if out.Status != StatusOK || out.Candidate.Label != "smartphone" || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if eng.prompts[0] != DetectPrompt {
		t.Error("first call must use the detection prompt")
	}
}

func TestDetectVagueReask(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		script    []reply
		wantLabel string
		reasked   bool
	}{
		{"second answer used", []reply{{label: "dark smooth surface", conf: 80}, {label: "smartphone", conf: 85}}, "smartphone", true},
		{"both vague keeps first", []reply{{label: "dark smooth surface", conf: 80}, {label: "flat object", conf: 90}}, "dark smooth surface", false},
		{"empty re-ask keeps first", []reply{{label: "white plastic sheet", conf: 70}, {label: "", conf: 90}}, "white plastic sheet", false},
		{"low confidence triggers re-ask", []reply{{label: "bottle", conf: 50}, {label: "glass bottle", conf: 75}}, "glass bottle", true},
		{"re-ask failure keeps first", []reply{{label: "flat object", conf: 70}, {err: errors.New("boom")}}, "flat object", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &scriptEngine{script: tc.script}
			out := NewDetector(eng, Options{Backoff: fastBackoff}).Detect(context.Background(), nil)
			if out.Status != StatusOK {
				t.Fatalf("status = %v, err = %v", out.Status, out.Err)
			}
			if out.Candidate.Label != tc.wantLabel || out.Reasked != tc.reasked {
				t.Errorf("got %q reasked=%v; want %q reasked=%v", out.Candidate.Label, out.Reasked, tc.wantLabel, tc.reasked)
			}
			if eng.calls() != 2 {
				t.Errorf("calls = %d, want exactly one re-ask", eng.calls())
			}
			if eng.prompts[1] != RetryPrompt {
				t.Error("re-ask must use the retry prompt")
			}
		})
	}
}

func TestDetectRateLimitRetries(t *testing.T) {
	t.Parallel()

	eng := &scriptEngine{script: []reply{{err: errQuota}, {err: errQuota}, {err: errQuota}, {label: "never", conf: 99}}}
	out := NewDetector(eng, Options{Backoff: fastBackoff}).Detect(context.Background(), nil)
	if out.Status != StatusRateLimited {
		t.Fatalf("status = %v", out.Status)
	}
	if eng.calls() != 3 || out.Attempts != 3 {
		t.Errorf("calls = %d attempts = %d, want 3", eng.calls(), out.Attempts)
	}
	if !errors.Is(out.Err, ErrRateLimited) {
		t.Errorf("err = %v", out.Err)
	}
}

func TestDetectRateLimitThenSuccess(t *testing.T) {
	t.Parallel()

	eng := &scriptEngine{script: []reply{{err: errQuota}, {label: "banana peel", conf: 88}}}
	var seen []Status
	var mu sync.Mutex
	opts := Options{Backoff: fastBackoff, OnAttempt: func(_ context.Context, s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}}
	out := NewDetector(eng, opts).Detect(context.Background(), nil)
	if out.Status != StatusOK || out.Candidate.Label != "banana peel" || out.Attempts != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(seen) != 2 || seen[0] != StatusRateLimited || seen[1] != StatusOK {
		t.Errorf("observed = %v", seen)
	}
}

func TestDetectServiceErrorNoRetry(t *testing.T) {
	t.Parallel()

	for name, err := range map[string]error{
		"plain":   errors.New("connection reset"),
		"timeout": context.DeadlineExceeded,
		"grpc":    status.Error(codes.Internal, "boom"),
	} {
		eng := &scriptEngine{script: []reply{{err: err}, {label: "never", conf: 99}}}
		out := NewDetector(eng, Options{Backoff: fastBackoff}).Detect(context.Background(), nil)
		if out.Status != StatusServiceError || eng.calls() != 1 {
			t.Errorf("%s: status = %v calls = %d", name, out.Status, eng.calls())
		}
		if !errors.Is(out.Err, ErrService) {
			t.Errorf("%s: err = %v", name, out.Err)
		}
	}
}

func TestDetectCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	eng := &scriptEngine{script: []reply{{err: errQuota}, {err: errQuota}, {err: errQuota}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewDetector(eng, Options{Backoff: []time.Duration{time.Hour, time.Hour}}).Detect(ctx, nil)
	if out.Status != StatusServiceError || eng.calls() != 1 {
		t.Fatalf("status = %v calls = %d", out.Status, eng.calls())
	}
}

// slowEngine blocks until its context ends.
type slowEngine struct{}

func (slowEngine) Name() string     { return "slow" }
func (slowEngine) GetModel() string { return "" }
func (slowEngine) Detect(ctx context.Context, _ []byte, _, _ string) (waste.Candidate, error) {
	<-ctx.Done()
	return waste.Candidate{}, ctx.Err()
}

func TestDetectTimeout(t *testing.T) {
	t.Parallel()

	out := NewDetector(slowEngine{}, Options{Timeout: 5 * time.Millisecond, Backoff: fastBackoff}).Detect(context.Background(), nil)
	if out.Status != StatusServiceError || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	rate := []error{
		errQuota,
		status.Error(codes.ResourceExhausted, "quota"),
		errors.New("googleapi: Error 429: Resource has been exhausted"),
		fmt.Errorf("wrapped: %w", errors.New("RESOURCE EXHAUSTED")),
	}
	for _, err := range rate {
		if !errors.Is(ClassifyError(err), ErrRateLimited) {
			t.Errorf("%v should be rate limited", err)
		}
	}
	svc := []error{
		&googleapi.Error{Code: 500},
		status.Error(codes.DeadlineExceeded, "slow"),
		context.DeadlineExceeded,
	}
	for _, err := range svc {
		if !errors.Is(ClassifyError(err), ErrService) {
			t.Errorf("%v should be a service error", err)
		}
	}
	if ClassifyError(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestParseDetection(t *testing.T) {
	t.Parallel()

	c, err := ParseDetection("```json\n{\"object_name\": \" Banana Peel \", \"confidence\": \"91.5\"}\n```")
	if err != nil || c.Label != "Banana Peel" || c.Confidence != 91.5 {
		t.Fatalf("got %+v %v", c, err)
	}
	c, err = ParseDetection(`Sure! {"object_name":"jar","confidence":140}`)
	if err != nil || c.Confidence != 100 {
		t.Fatalf("clamp: got %+v %v", c, err)
	}
	if _, err := ParseDetection("no json here"); !errors.Is(err, ErrService) {
		t.Errorf("err = %v", err)
	}
	cat, err := ParseCategoryReply(`{"category": "E-Waste"}`)
	if err != nil || cat != "E-Waste" {
		t.Errorf("category = %q %v", cat, err)
	}
}

func TestEnginesRegistry(t *testing.T) {
	t.Parallel()

	def := &scriptEngine{}
	reg := NewEngines(def, slowEngine{})
	if e, err := reg.Get(""); err != nil || e != def {
		t.Errorf("default = %v %v", e, err)
	}
	if e, err := reg.Get("SLOW"); err != nil || e.Name() != "slow" {
		t.Errorf("by name = %v %v", e, err)
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Error("expected unknown engine error")
	}
}
