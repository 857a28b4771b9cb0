// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"helpdesk-workers/internal/api"
	"helpdesk-workers/internal/common/audit"
	awsclient "helpdesk-workers/internal/common/aws"
	"helpdesk-workers/internal/common/camunda"
	"helpdesk-workers/internal/common/config"
	"helpdesk-workers/internal/common/database"
	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/knowledge"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/observability"
	"helpdesk-workers/internal/common/zoho"
	classifyticket "helpdesk-workers/internal/workers/helpdesk/classify-ticket"
	generatereply "helpdesk-workers/internal/workers/helpdesk/generate-reply"
	processticket "helpdesk-workers/internal/workers/helpdesk/process-ticket"
	retrievecontext "helpdesk-workers/internal/workers/helpdesk/retrieve-context"
	scoreconfidence "helpdesk-workers/internal/workers/helpdesk/score-confidence"
)

// retryWithBackoff attempts to execute a function with exponential backoff
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

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting helpdesk worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()
	var cleanup closers
	defer cleanup.run()

	obs := observability.New(cfg.App.Name, log)
	cleanup.add(func() { obs.Shutdown(context.Background()) })

	tracing, err := observability.NewTracing(cfg.App.Name, cfg.Observability.JaegerEndpoint)
	if err != nil {
		zapLog.Fatal("tracing init failed", zap.Error(err))
	}
	cleanup.add(func() { tracing.Shutdown(context.Background()) })

	// --- Generator ---
	gen, err := llm.New(ctx, cfg.APIs.GenAI, log)
	if err != nil {
		zapLog.Fatal("generator init failed", zap.Error(err))
	}
	cleanup.add(func() { gen.Close() })
	zapLog.Info("Generator configured", zap.String("provider", gen.Name()), zap.String("model", cfg.APIs.GenAI.Model))

	var checks []api.Check
	if cfg.APIs.GenAI.Provider != config.ProviderDisabled {
		checks = append(checks, api.Check{Name: "genai", Check: func(ctx context.Context) error { return llm.Probe(ctx, gen) }})
	}

	// --- Knowledge base ---
	store, storeChecks, err := buildStore(ctx, cfg, log, zapLog, &cleanup)
	if err != nil {
		zapLog.Fatal("knowledge store init failed", zap.Error(err))
	}
	checks = append(checks, storeChecks...)

	// --- Audit sinks ---
	sink, stats, sinkChecks, err := buildSinks(ctx, cfg, log, zapLog, &cleanup)
	if err != nil {
		zapLog.Fatal("audit sink init failed", zap.Error(err))
	}
	checks = append(checks, sinkChecks...)

	// --- Pipeline ---
	stageHandlers := processticket.NewStageHandlers(cfg, gen, store, log)
	pipeline := processticket.NewHandler(
		processticket.LoadConfig(cfg),
		stageHandlers.Stages(),
		log,
		processticket.WithSink(sink),
		processticket.WithObservability(obs),
		processticket.WithTracerProvider(tracing.TracerProvider()),
	)

	// --- Camunda workers ---
	var starter api.ProcessStarter
	if cfg.Camunda.Enabled {
		client, err := connectCamunda(cfg, zapLog)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		cleanup.add(func() {
			if err := client.Close(); err != nil {
				zapLog.Error("Error closing Zeebe client", zap.Error(err))
			}
		})
		starter = client
		checks = append(checks, api.Check{Name: "camunda", Check: client.HealthCheck})

		registry := camunda.NewRegistry(client.GetClient(), obs, log)
		cleanup.add(registry.Close)

		registry.Start(classifyticket.TaskType, config.GetWorkerConfig(cfg, classifyticket.TaskType), stageHandlers.Classify.Handle)
		registry.Start(retrievecontext.TaskType, config.GetWorkerConfig(cfg, retrievecontext.TaskType), stageHandlers.Retrieve.Handle)
		registry.Start(generatereply.TaskType, config.GetWorkerConfig(cfg, generatereply.TaskType), stageHandlers.Respond.Handle)
		registry.Start(scoreconfidence.TaskType, config.GetWorkerConfig(cfg, scoreconfidence.TaskType), stageHandlers.Score.Handle)
		registry.Start(processticket.TaskType, config.GetWorkerConfig(cfg, processticket.TaskType), pipeline.Handle)

		zapLog.Info("Workers registered", zap.Strings("taskTypes", registry.TaskTypes()))
	} else {
		zapLog.Info("Camunda disabled, serving the HTTP API only")
	}

	// --- HTTP API ---
	router := api.NewRouter(api.Options{
		Processor:       pipeline,
		Stats:           stats,
		Starter:         starter,
		ProcessID:       cfg.Camunda.ProcessID,
		MaxTicketLength: processticket.LoadConfig(cfg).MaxTicketLength,
		Checks:          checks,
		Generator:       llm.Describe(cfg.APIs.GenAI, generatereply.LoadConfig(cfg).MaxTokens),
		Service:         cfg.App.Name,
		Version:         cfg.App.Version,
		Logger:          log,
	})

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	timeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func connectCamunda(cfg *config.Config, zapLog *zap.Logger) (*camunda.Client, error) {
	var client *camunda.Client
	err := retryWithBackoff(func() error {
		var err error
		client, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		return nil, err
	}
	zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))
	return client, nil
}

// buildStore opens the configured knowledge source and, when a cache TTL is
// set, puts the Redis cache in front of it.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger, cleanup *closers) (knowledge.Store, []api.Check, error) {
	var store knowledge.Store
	var checks []api.Check

	switch cfg.Knowledge.Source {
	case config.KnowledgeSourceFile, "":
		fs, err := knowledge.OpenFileStore(cfg.Knowledge.Directory, cfg.Knowledge.Manifest)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	case config.KnowledgeSourceMemory:
		fs, err := knowledge.OpenFileStore(cfg.Knowledge.Directory, cfg.Knowledge.Manifest)
		if err != nil {
			return nil, nil, err
		}
		mem, err := fs.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		zapLog.Info("Knowledge base loaded into memory", zap.Int("documents", len(mem.All())))
		store = mem
	case config.KnowledgeSourceElasticsearch:
		var esClient *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return nil, nil, err
		}
		zapLog.Info("Elasticsearch connected successfully")
		store = knowledge.NewElasticsearchStore(esClient.Client, cfg.Knowledge.Index)
		checks = append(checks, api.Check{Name: "elasticsearch", Check: esClient.Ping})
	default:
		return nil, nil, fmt.Errorf("unsupported knowledge source %q", cfg.Knowledge.Source)
	}

	if cfg.Knowledge.CacheTTL > 0 {
		var redis *database.RedisClient
		err := retryWithBackoff(func() error {
			redis = database.NewRedis(cfg.Database.Redis)
			if err := redis.Ping(ctx); err != nil {
				redis.Close()
				return err
			}
			return nil
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(func() { redis.Close() })
		zapLog.Info("Redis connected successfully")

		ttl := time.Duration(cfg.Knowledge.CacheTTL) * time.Second
		store = knowledge.NewCachedStore(store, redis.Client, ttl, log)
		checks = append(checks, api.Check{Name: "redis", Check: redis.Ping})
	}

	return store, checks, nil
}

// buildSinks assembles the audit fan-out. Statistics come from Postgres when
// it is enabled and from an in-memory window otherwise.
func buildSinks(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger, cleanup *closers) (audit.Sink, audit.Stats, []api.Check, error) {
	var checks []api.Check

	mem := audit.NewMemorySink(1000)
	sinks := audit.NewMultiSink(log).
		WithTimeout(config.GetDuration(cfg.Pipeline.SinkTimeout)).
		Add("log", audit.NewLogSink(log)).
		Add("memory", mem)
	var stats audit.Stats = mem

	if cfg.Audit.Postgres.Enabled {
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			return nil
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup.add(func() { pg.Close() })
		zapLog.Info("PostgreSQL connected successfully")

		pgSink, err := audit.NewPostgresSink(pg.DB, cfg.Audit.Postgres.Table, log)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Audit.Postgres.AutoMigrate {
			if err := pgSink.EnsureSchema(ctx); err != nil {
				return nil, nil, nil, err
			}
		}
		sinks.Add("postgres", pgSink)
		stats = pgSink
		checks = append(checks, api.Check{Name: "postgres", Check: func(ctx context.Context) error {
			if err := pg.Ping(ctx); err != nil {
				return apperrors.NewDatabaseConnectionFailedError(err)
			}
			return nil
		}})
	}

	esc := cfg.Notifications.Escalation
	if esc.Enabled && esc.Zoho.Enabled {
		z := esc.Zoho
		tokens := zoho.StaticToken(z.AccessToken)
		if z.AccessToken == "" {
			tokens = zoho.RefreshTokenSource(ctx, z.AccountsURL, z.ClientID, z.ClientSecret, z.RefreshToken)
		}
		crm := zoho.NewCRMClient(z.BaseURL, tokens, config.GetDuration(z.Timeout))
		sinks.Add("zoho", audit.NewCaseSink(crm, log))
		zapLog.Info("Zoho CRM escalation cases enabled")
	}
	if esc.Enabled && (esc.TopicARN != "" || esc.Email.Enabled) {
		var snsClient audit.SNSService
		var sesClient audit.SESService
		if esc.TopicARN != "" {
			c, err := awsclient.NewSNSClient(ctx, esc.Region)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("sns client: %w", err)
			}
			snsClient = c
		}
		if esc.Email.Enabled {
			c, err := awsclient.NewSESClient(ctx, esc.Region)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("ses client: %w", err)
			}
			sesClient = c
		}
		sinks.Add("escalation", audit.NewEscalationNotifier(audit.EscalationConfig{
			TopicARN:  esc.TopicARN,
			FromEmail: esc.Email.FromEmail,
			To:        esc.Email.To,
		}, snsClient, sesClient, log))
		zapLog.Info("Escalation notifications enabled",
			zap.Bool("sns", snsClient != nil),
			zap.Bool("ses", sesClient != nil),
		)
	}

	zapLog.Info("Audit sinks configured", zap.Int("sinks", sinks.Len()))
	return sinks, stats, checks, nil
}
