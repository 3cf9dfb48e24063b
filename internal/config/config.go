package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

type Config struct {
	TelegramBotToken string `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `hcl:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	DatabaseDSN      string `hcl:"database_dsn" env:"DATABASE_DSN"`
	LogLevel         string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	MetricsAddr      string `hcl:"metrics_addr" env:"METRICS_ADDR" default:":9090"`

	PollSchedule    string `hcl:"poll_schedule" env:"POLL_SCHEDULE" default:"@every 10m"`
	AnalyzeSchedule string `hcl:"analyze_schedule" env:"ANALYZE_SCHEDULE" default:"@every 1m"`

	BatchSize    int `hcl:"batch_size" env:"BATCH_SIZE" default:"10"`
	MaxArticles  int `hcl:"max_articles" env:"MAX_ARTICLES" default:"500"`
	HistoryLimit int `hcl:"history_limit" env:"HISTORY_LIMIT" default:"1000"`
	ContentLimit int `hcl:"content_limit" env:"CONTENT_LIMIT" default:"2000"`

	FetchTimeout     time.Duration `hcl:"fetch_timeout" env:"FETCH_TIMEOUT" default:"20s"`
	FetchConcurrency int           `hcl:"fetch_concurrency" env:"FETCH_CONCURRENCY" default:"4"`
	HostInterval     time.Duration `hcl:"host_interval" env:"HOST_INTERVAL" default:"1s"`

	AnalyzerEndpoint string        `hcl:"analyzer_endpoint" env:"ANALYZER_ENDPOINT" default:"https://api.openai.com/v1/chat/completions"`
	AnalyzerModel    string        `hcl:"analyzer_model" env:"ANALYZER_MODEL" default:"gpt-4o-mini"`
	AnalyzerAPIKey   string        `hcl:"analyzer_api_key" env:"ANALYZER_API_KEY"`
	AnalyzerTimeout  time.Duration `hcl:"analyzer_timeout" env:"ANALYZER_TIMEOUT" default:"30s"`
}

var (
	cfg  Config
	once sync.Once
)

// Get loads the configuration once from ./config.hcl, ./config.local.hcl and
// SENTINEL_* environment variables.
func Get() Config {
	once.Do(func() {
		loaded, err := Load("./config.hcl", "./config.local.hcl")
		if err != nil {
			log.Printf("ERROR: config load fail: %v", err)
		}
		cfg = loaded
	})

	return cfg
}

// Load reads the given HCL files, later files overriding earlier ones, then
// the environment. Missing files are skipped.
func Load(files ...string) (Config, error) {
	var c Config

	loader := aconfig.LoaderFor(&c, aconfig.Config{
		EnvPrefix:        "SENTINEL",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		MergeFiles:       true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})

	if err := loader.Load(); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
