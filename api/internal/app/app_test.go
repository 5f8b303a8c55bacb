package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/config"
	"wasteiq/api/internal/detect/gemini"
	"wasteiq/api/internal/detect/openai"
	"wasteiq/api/internal/store"
	"wasteiq/api/internal/waste"
)

func testConfig() *config.Config {
	return &config.Config{
		RemoteEngine:      "none",
		RemoteTimeout:     time.Second,
		LocalModelPath:    "/nonexistent/model.onnx",
		LocalLabelsPath:   "/nonexistent/labels.json",
		LocalConcurrency:  1,
		DBDriver:          "sqlite3",
		DatabaseURL:       ":memory:",
		UnidentifiedBelow: 40,
		VagueRetryBelow:   60,
		FuzzyCutoff:       75,
	}
}

func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBuildWithoutTiersLogsErrorRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := Build(ctx, testConfig(), "wasteiq-test")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	if a.DB == nil || a.Logs == nil || a.Points == nil {
		t.Fatal("store must be wired")
	}
	e := a.Service.ClassifyAndSave(ctx, classify.Request{Image: tinyJPEG(t), UserID: "u1"})
	if e.Mode != waste.ModeError || e.ID == "" {
		t.Fatalf("entry = %+v", e)
	}
	logs, err := a.Logs.History(ctx, "u1", 0)
	if err != nil || len(logs) != 1 {
		t.Fatalf("history = %+v, %v", logs, err)
	}
	if _, err := a.Points.Profile(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error results earn no points, profile err = %v", err)
	}
	if r := a.Router(nil); r.Logs == nil || r.Service == nil {
		t.Errorf("router = %+v", r)
	}
}

func TestBuildWithoutDatabase(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DBDriver = "none"
	a, err := Build(context.Background(), cfg, "wasteiq-test")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())
	if a.DB != nil {
		t.Fatal("no database expected")
	}
	if r := a.Router(nil); r.Logs != nil || r.Points != nil {
		t.Error("router must not see a store")
	}
}

func TestBuildRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	for _, mut := range []func(*config.Config){
		func(c *config.Config) { c.FuzzyCutoff = 150 },
		func(c *config.Config) { c.FuzzyCutoff = 0 },
		func(c *config.Config) { c.VagueRetryBelow = 0 },
	} {
		cfg := testConfig()
		mut(cfg)
		if _, err := Build(context.Background(), cfg, "wasteiq-test"); err == nil {
			t.Errorf("expected policy error for %+v", cfg)
		}
	}
}

func TestRemoteEngineSelection(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if eng, tie := remoteEngine(cfg); eng != nil || tie != nil {
		t.Fatal("no keys, no engine")
	}

	cfg.GeminiAPIKey, cfg.GeminiModel = "gem-key-123456", "gemini-2.0-flash"
	cfg.OpenAIAPIKey, cfg.OpenAIModel = "sk-123456", "gpt-4o-mini"

	cfg.RemoteEngine = "gpt"
	eng, tie := remoteEngine(cfg)
	if _, ok := eng.(*openai.Engine); !ok || tie == nil {
		t.Errorf("gpt selection = %T %T", eng, tie)
	}

	cfg.RemoteEngine = "gemini"
	if eng, _ := remoteEngine(cfg); eng.Name() != "gemini" {
		t.Errorf("gemini selection = %v", eng.Name())
	}

	cfg.RemoteEngine = "claude"
	if eng, _ := remoteEngine(cfg); eng == nil {
		t.Error("unknown engine falls back to the default")
	} else if _, ok := eng.(*gemini.Engine); !ok {
		t.Errorf("fallback = %T", eng)
	}

	cfg.RemoteEngine = "none"
	if eng, _ := remoteEngine(cfg); eng != nil {
		t.Error("none disables the remote tier")
	}
}
