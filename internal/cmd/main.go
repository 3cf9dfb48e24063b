package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sentinel/internal/alert"
	"sentinel/internal/analyzer"
	"sentinel/internal/bot"
	"sentinel/internal/config"
	"sentinel/internal/enricher"
	"sentinel/internal/fetcher"
	"sentinel/internal/logger"
	"sentinel/internal/metrics"
	"sentinel/internal/scheduler"
	"sentinel/internal/sentinel"
	"sentinel/internal/source"
	"sentinel/internal/storage"
)

func main() {
	cfg := config.Get()
	log := logger.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var state storage.StateStore = storage.NewMemoryState()

	if cfg.DatabaseDSN != "" {
		db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
		if err != nil {
			log.Error("failed to connect to db", "error", err)
			return
		}
		defer db.Close()

		pg := storage.NewPostgresState(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to migrate state table", "error", err)
			return
		}
		state = pg
	} else {
		log.Warn("no database configured, state is kept in memory")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		feedSource = source.NewRSSSource(
			&http.Client{Timeout: cfg.FetchTimeout},
			source.NewHostRateLimiter(cfg.HostInterval),
		)
		analyzerClient = analyzer.NewClient(analyzer.Config{
			Endpoint: cfg.AnalyzerEndpoint,
			Model:    cfg.AnalyzerModel,
			APIKey:   cfg.AnalyzerAPIKey,
			Timeout:  cfg.AnalyzerTimeout,
		})
		feedFetcher = fetcher.New(feedSource, cfg.FetchConcurrency, log.With("component", "fetcher"), m)
		enrich      = enricher.New(
			analyzerClient,
			alert.NewEngine(),
			cfg.BatchSize,
			cfg.ContentLimit,
			log.With("component", "enricher"),
			m,
		)
		service = sentinel.New(
			state,
			feedFetcher,
			enrich,
			sentinel.Config{MaxArticles: cfg.MaxArticles, HistoryLimit: cfg.HistoryLimit},
			log.With("component", "service"),
			m,
			sentinel.WithAnalyst(analyzerClient),
		)
	)

	sched, err := scheduler.New(service, cfg.PollSchedule, cfg.AnalyzeSchedule, log.With("component", "scheduler"))
	if err != nil {
		log.Error("failed to create scheduler", "error", err)
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func(ctx context.Context) {
		defer wg.Done()

		if err := sched.Run(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("failed to run scheduler", "error", err)
				return
			}

			log.Info("scheduler has stopped")
		}
	}(ctx)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to run metrics server", "error", err)
		}
	}()

	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Error("failed to create botAPI", "error", err)
		} else {
			b := bot.New(botAPI, cfg.TelegramChatID, log.With("component", "bot"))
			bot.RegisterViews(b, service)

			wg.Add(1)
			go func(ctx context.Context) {
				defer wg.Done()

				if err := b.Run(ctx); err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Error("failed to run bot", "error", err)
						return
					}

					log.Info("bot has stopped")
				}
			}(ctx)
		}
	}

	log.Info("sentinel started", "poll", cfg.PollSchedule, "analyze", cfg.AnalyzeSchedule, "metrics", cfg.MetricsAddr)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop metrics server", "error", err)
	}

	wg.Wait()
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}
