// Package app wires configuration into a ready classification service.
// Both binaries share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/config"
	"wasteiq/api/internal/detect"
	"wasteiq/api/internal/detect/gemini"
	"wasteiq/api/internal/detect/openai"
	"wasteiq/api/internal/imagenorm"
	"wasteiq/api/internal/local"
	"wasteiq/api/internal/mapper"
	"wasteiq/api/internal/store"
	"wasteiq/api/internal/telegram"
	"wasteiq/api/internal/telemetry"
	"wasteiq/api/internal/util"
	"wasteiq/api/internal/waste"
)

const Version = "0.3.0"

type App struct {
	Cfg       *config.Config
	DB        *sql.DB // nil with DB_DRIVER=none
	Logs      *store.LogRepo
	Points    *store.PointsRepo
	Telemetry *telemetry.Provider
	Service   *classify.Service

	model *local.Lazy
}

// Build opens the store, sets up telemetry and assembles the pipeline.
// Missing API keys leave the remote tier unconfigured.
func Build(ctx context.Context, cfg *config.Config, service string) (*App, error) {
	policy := classify.Policy{
		UnidentifiedBelow: cfg.UnidentifiedBelow,
		VagueRetryBelow:   cfg.VagueRetryBelow,
		FuzzyCutoff:       cfg.FuzzyCutoff,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.OTelEnabled,
		Endpoint: cfg.OTelEndpoint,
		Protocol: cfg.OTelProtocol,
		Service:  service,
		Version:  Version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tel

	if cfg.DBDriver != "none" {
		db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			tel.Shutdown(ctx)
			return nil, err
		}
		slog.Info("db connected", "dsn", config.SafeDSNSummary(cfg.DatabaseURL))
		a.DB = db
		a.Logs = store.NewLogRepo(db)
		a.Points = store.NewPointsRepo(db)
	}

	engine, tie := remoteEngine(cfg)
	var remote classify.RemoteDetector
	if engine != nil {
		opts := detect.Options{
			Timeout:         cfg.RemoteTimeout,
			VagueRetryBelow: policy.VagueRetryBelow,
			Prompts: detect.Prompts{
				Detect: util.LoadPrompt(cfg.PromptDir, "detect", detect.DetectPrompt),
				Retry:  util.LoadPrompt(cfg.PromptDir, "retry", detect.RetryPrompt),
			},
			Vague: waste.DefaultVague(),
			OnAttempt: func(ctx context.Context, s detect.Status) {
				tel.RecordRemoteAttempt(ctx, s.String())
			},
		}
		if cfg.RemoteRPM > 0 {
			opts.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RemoteRPM)), 1)
		}
		remote = detect.NewDetector(engine, opts)
		slog.Info("remote tier configured", "engine", engine.Name(), "model", engine.GetModel())
	} else {
		slog.Info("remote tier not configured, local model only")
	}

	a.model = local.NewLazy(func() (local.Model, error) {
		m, err := local.LoadONNX(local.ONNXConfig{
			ModelPath:         cfg.LocalModelPath,
			LabelsPath:        cfg.LocalLabelsPath,
			SharedLibraryPath: cfg.ONNXRuntimeLib,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	})

	orch := classify.NewOrchestrator(classify.Deps{
		Normalizer: imagenorm.New(imagenorm.Options{}),
		Remote:     remote,
		Local:      local.New(a.model, local.Options{Concurrency: int64(cfg.LocalConcurrency)}),
		Mapper:     mapper.New(waste.DefaultLabels(), tie, mapper.Options{FuzzyCutoff: policy.FuzzyCutoff, Timeout: cfg.RemoteTimeout}),
		Policy:     policy,
		Recorder:   tel,
		Tracer:     tel.Tracer(),
	})

	var (
		logs   classify.LogStore
		points classify.Points
	)
	if a.DB != nil {
		logs, points = a.Logs, a.Points
	}
	a.Service = classify.NewService(orch, logs, points)
	return a, nil
}

// remoteEngine picks REMOTE_ENGINE among the engines that have a key.
func remoteEngine(cfg *config.Config) (detect.Engine, mapper.TieBreaker) {
	var (
		all []detect.Engine
		gem *gemini.Engine
		gpt *openai.Engine
	)
	if cfg.GeminiAPIKey != "" {
		gem = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
		all = append(all, gem)
		slog.Info("gemini key", "key", util.MaskSecret(cfg.GeminiAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		gpt = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if cfg.OpenAIBaseURL != "" {
			gpt.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
		}
		all = append(all, gpt)
		slog.Info("openai key", "key", util.MaskSecret(cfg.OpenAIAPIKey))
	}
	if cfg.RemoteEngine == "none" || len(all) == 0 {
		return nil, nil
	}

	engines := detect.NewEngines(all[0], all[1:]...)
	eng, err := engines.Get(cfg.RemoteEngine)
	if err != nil {
		slog.Warn("remote engine unavailable, using default", "engine", cfg.RemoteEngine, "err", err, "default", engines.Default().Name())
		eng = engines.Default()
	}
	switch e := eng.(type) {
	case *gemini.Engine:
		return e, e
	case *openai.Engine:
		return e, e
	}
	return eng, nil
}

// Router builds the Telegram surface on top of the service.
func (a *App) Router(bot telegram.Bot) *telegram.Router {
	r := &telegram.Router{Bot: bot, Service: a.Service}
	if a.DB != nil {
		r.Logs, r.Points = a.Logs, a.Points
	}
	return r
}

// Close releases the model, the database and flushes telemetry.
func (a *App) Close(ctx context.Context) {
	if a.model != nil {
		if err := a.model.Close(); err != nil {
			slog.Warn("local model close failed", "err", err)
		}
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	a.Telemetry.Shutdown(ctx)
}
