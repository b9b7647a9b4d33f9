package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsclient "service-dispatch/internal/common/aws"
	"service-dispatch/internal/common/camunda"
	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/database"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/observability"
	"service-dispatch/internal/common/validation"
	"service-dispatch/internal/conversation/complexity"
	"service-dispatch/internal/dispatch/coordinator"
	"service-dispatch/internal/dispatch/directory"
	"service-dispatch/internal/dispatch/response"
	"service-dispatch/internal/dispatch/scorer"
	"service-dispatch/internal/dispatch/timer"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/search"
	"service-dispatch/internal/store"
	"service-dispatch/internal/store/memory"
	"service-dispatch/internal/store/postgres"
	"service-dispatch/internal/store/redisstore"
	"service-dispatch/pkg/registry"

	analyze "service-dispatch/internal/workers/conversation/analyze-conversation"
	cancelreq "service-dispatch/internal/workers/dispatch/cancel-request"
	completereq "service-dispatch/internal/workers/dispatch/complete-request"
	dispatchreq "service-dispatch/internal/workers/dispatch/dispatch-request"
	reply "service-dispatch/internal/workers/dispatch/provider-reply"
	redispatchreq "service-dispatch/internal/workers/dispatch/redispatch-request"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// dispatchStore is what the coordinator needs from the primary store.
type dispatchStore interface {
	store.RequestStore
	store.ProviderStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting dispatch manager",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	jaeger := ""
	if cfg.Observability.TracingEnabled {
		jaeger = cfg.Observability.JaegerEndpoint
	}
	obs, err := observability.New(cfg.Observability.ServiceName, jaeger)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown(context.Background())

	// --- Zeebe ---
	zeebe, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()

	// --- Primary store ---
	var (
		primary dispatchStore
		pg      *database.PostgresClient
	)
	switch cfg.Dispatch.Store {
	case config.StoreMemory:
		zapLog.Warn("using in-memory store, state is lost on restart")
		primary = memory.New()
	default:
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx, postgres.Schema...); err != nil {
			zapLog.Fatal("postgres migration failed", zap.Error(err))
		}
		primary = postgres.New(pg.DB)
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch history (optional) ---
	var events coordinator.EventSink
	var history *search.HistoryIndexer
	if cfg.Database.Elasticsearch.GetURL() != "" {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("dispatch history disabled", zap.Error(err))
		} else {
			history = search.NewHistoryIndexer(es.Client, cfg.Database.Elasticsearch.Index, log)
			if err := history.EnsureIndex(ctx); err != nil {
				zapLog.Warn("history index not ready", zap.Error(err))
			}
			events = history
		}
	}

	// --- Outbound messaging ---
	var (
		gateway notify.Gateway = notify.NewLogGateway(log)
		mailer  notify.Mailer
	)
	awsCfg := cfg.Integrations.AWS
	if awsCfg.SNS.Enabled || awsCfg.SES.Enabled {
		sdkCfg, err := awsclient.LoadConfig(ctx, awsCfg.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if awsCfg.SNS.Enabled {
			gateway = notify.NewSNSGateway(awsclient.NewSNSClient(sdkCfg), awsCfg.SNS.DefaultSMSSenderID, log)
		}
		if awsCfg.SES.Enabled {
			mailer = notify.NewSESMailer(awsclient.NewSESClient(sdkCfg), awsCfg.SES.FromEmail)
		}
	}

	// --- Escalation timers ---
	var timers timer.Scheduler
	switch cfg.Dispatch.TimerBackend {
	case config.TimerBackendRedis:
		rs := timer.NewRedisScheduler(rdb.Client, cfg.Dispatch.TimerQueueKey,
			config.GetDuration(cfg.Dispatch.TimerPollInterval), log)
		go func() {
			if err := rs.Run(ctx); err != nil && ctx.Err() == nil {
				zapLog.Error("timer poller stopped", zap.Error(err))
			}
		}()
		timers = rs
	default:
		timers = timer.NewLocalScheduler(log)
	}

	// --- Dispatch core ---
	dir := directory.New(primary, directory.NewZoneMatcher(cfg.Dispatch.Zones), log)
	coord := coordinator.New(coordinator.ConfigFromDispatch(cfg.Dispatch), coordinator.Deps{
		Requests:  primary,
		Providers: primary,
		Latencies: redisstore.NewLatencyStore(rdb.Client),
		Finder:    dir,
		Scorer:    scorer.New(scorer.WeightsFromConfig(cfg.Dispatch.Weights)),
		Timers:    timers,
		Gateway:   gateway,
		Events:    events,
	}, log)

	if n, err := coord.Recover(ctx); err != nil {
		zapLog.Error("timer recovery failed", zap.Error(err))
	} else {
		zapLog.Info("open attempts recovered", zap.Int("count", n))
	}

	replies := response.NewHandler(primary, coord, response.NewKeywordClassifier(), gateway, log)
	router := complexity.NewRouter(
		complexity.NewAnalyzer(complexity.ConfigFromEscalation(cfg.Escalation)),
		rdb.Client,
		complexity.RouterOptions{
			QueueKey:  cfg.Escalation.AgentQueueKey,
			Mailer:    mailer,
			DeskEmail: cfg.Escalation.DeskEmail,
			Gateway:   gateway,
		},
		log,
	)

	// --- Activity registry ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Warn("activity registry not loaded from disk, using embedded copy",
			zap.String("path", cfg.Registry.Path), zap.Error(err))
		reg = registry.Default()
	}
	validator := validation.NewValidator(reg)

	// --- Workers ---
	pool := camunda.NewPool(zeebe.Raw(), log)
	mustHandler := func(taskType string, h camunda.JobHandler, err error) camunda.JobHandler {
		if err != nil {
			zapLog.Fatal("failed to create handler", zap.String("taskType", taskType), zap.Error(err))
		}
		return h
	}
	workerCfg := func(taskType string) config.WorkerConfig {
		if w, ok := cfg.Workers[taskType]; ok {
			return w
		}
		return config.WorkerConfig{Enabled: false}
	}

	dh, err := dispatchreq.NewHandler(dispatchreq.HandlerOptions{
		AppConfig: cfg, Dispatcher: coord, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(dispatchreq.TaskType, workerCfg(dispatchreq.TaskType), mustHandler(dispatchreq.TaskType, dh, err))

	rh, err := reply.NewHandler(reply.HandlerOptions{
		AppConfig: cfg, Replies: replies, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(reply.TaskType, workerCfg(reply.TaskType), mustHandler(reply.TaskType, rh, err))

	ch, err := cancelreq.NewHandler(cancelreq.HandlerOptions{
		AppConfig: cfg, Canceller: coord, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(cancelreq.TaskType, workerCfg(cancelreq.TaskType), mustHandler(cancelreq.TaskType, ch, err))

	xh, err := redispatchreq.NewHandler(redispatchreq.HandlerOptions{
		AppConfig: cfg, Redispatcher: coord, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(redispatchreq.TaskType, workerCfg(redispatchreq.TaskType), mustHandler(redispatchreq.TaskType, xh, err))

	kh, err := completereq.NewHandler(completereq.HandlerOptions{
		AppConfig: cfg, Completer: coord, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(completereq.TaskType, workerCfg(completereq.TaskType), mustHandler(completereq.TaskType, kh, err))

	ah, err := analyze.NewHandler(analyze.HandlerOptions{
		AppConfig: cfg, Evaluator: router, Validator: validator, Observability: obs, Logger: log,
	})
	pool.Start(analyze.TaskType, workerCfg(analyze.TaskType), mustHandler(analyze.TaskType, ah, err))

	zapLog.Info("workers registered", zap.Strings("taskTypes", pool.Running()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"time":          time.Now().Format(time.RFC3339),
			"pendingTimers": timers.Pending(r.Context()),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK
		check := func(name string, fn func(context.Context) error) {
			if err := fn(r.Context()); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				return
			}
			checks[name] = "ok"
		}
		check("zeebe", zeebe.HealthCheck)
		check("redis", rdb.Ping)
		if pg != nil {
			check("postgres", pg.Ping)
		}
		writeJSON(w, status, map[string]interface{}{
			"status": http.StatusText(status),
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("health/metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("health/metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool.Close()
	stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("error stopping health server", zap.Error(err))
	}

	zapLog.Info("dispatch manager stopped gracefully")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
