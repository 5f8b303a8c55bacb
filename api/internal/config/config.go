package config

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	RemoteEngine  string // gemini | gpt | none
	RemoteTimeout time.Duration
	RemoteRPM     int // 0 = unlimited

	LocalModelPath   string
	LocalLabelsPath  string
	ONNXRuntimeLib   string
	LocalConcurrency int
	PromptDir        string

	DBDriver    string
	DatabaseURL string

	TelegramBotToken string
	WebhookURL       string

	OTelEnabled  bool
	OTelEndpoint string
	OTelProtocol string

	UnidentifiedBelow float64
	VagueRetryBelow   float64
	FuzzyCutoff       float64
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: not an integer, using default", "key", k, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: not a number, using default", "key", k, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: not a boolean, using default", "key", k, "value", v, "default", def)
		return def
	}
	return b
}

// getEnvDuration accepts Go durations ("10s") and bare seconds ("10").
func getEnvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	slog.Warn("config: not a duration, using default", "key", k, "value", v, "default", def)
	return def
}

// Load reads the environment after merging an optional .env file. Missing
// API keys only disable the matching remote engine.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env not loaded", "err", err)
	}

	cfg := &Config{
		Port: getEnv("PORT", "8000"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		RemoteEngine:  strings.ToLower(getEnv("REMOTE_ENGINE", "gemini")),
		RemoteTimeout: getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteRPM:     getEnvInt("REMOTE_RPM", 0),

		LocalModelPath:   getEnv("LOCAL_MODEL_PATH", "models/yolov8n-cls.onnx"),
		LocalLabelsPath:  getEnv("LOCAL_LABELS_PATH", "models/imagenet_labels.json"),
		ONNXRuntimeLib:   getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", ""),
		LocalConcurrency: getEnvInt("LOCAL_CONCURRENCY", 1),
		PromptDir:        getEnv("PROMPT_DIR", ""),

		DBDriver:    getEnv("DB_DRIVER", "pgx"),
		DatabaseURL: resolveDSN(),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelProtocol: getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),

		UnidentifiedBelow: getEnvFloat("UNIDENTIFIED_BELOW", 40),
		VagueRetryBelow:   getEnvFloat("VAGUE_RETRY_BELOW", 60),
		FuzzyCutoff:       getEnvFloat("FUZZY_CUTOFF", 75),
	}
	if cfg.DBDriver == "sqlite3" && os.Getenv("DATABASE_URL") == "" {
		cfg.DatabaseURL = getEnv("SQLITE_PATH", "wasteiq.db")
	}
	return cfg
}

func resolveDSN() string {
	// Prefer DATABASE_URL if provided
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := getEnv("POSTGRES_USER", "wasteiq")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "db")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "wasteiq")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn: " + strings.SplitN(dsn, "?", 2)[0]
	}
	user := u.User.Username()
	db := strings.TrimPrefix(u.Path, "/")
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "host=" + u.Host + " db=" + db + " user=" + user
	}
	return "host=" + host + " port=" + port + " db=" + db + " user=" + user
}
