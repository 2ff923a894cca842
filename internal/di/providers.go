package di

import (
	"context"
	"fmt"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/internal/domain/repository"
	"RateGate/internal/handler/api"
	mid "RateGate/internal/middleware"
	internalrepo "RateGate/internal/repository"
	"RateGate/internal/service/ratelimit"
	"RateGate/internal/usecase"
	pkgcache "RateGate/pkg/cache"
	pkgch "RateGate/pkg/clickhouse"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	pkgkafka "RateGate/pkg/kafka"
	applogger "RateGate/pkg/logger"
	"RateGate/pkg/metrics"
	"RateGate/pkg/server"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideKafkaClientMetrics creates producer/consumer metrics.
func ProvideKafkaClientMetrics(reg *prometheus.Registry) *pkgkafka.ClientMetrics {
	return pkgkafka.NewClientMetrics(reg)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, km *pkgkafka.ClientMetrics) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithProducerMetrics(km),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With kafka and the collector
// enabled, repeated error logs are aggregated and shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging.Config)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("service", "rategate"), applogger.String("env", cfg.Environment))

	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideUserLimitRepository opens the configured user-limit backend.
func ProvideUserLimitRepository(cfg *config.Config, l *applogger.Logger) (repository.UserLimitRepository, error) {
	switch cfg.UserStore.Backend {
	case "redis":
		host, port := cfg.RedisHostPort()
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(host, port),
			pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
			pkgcache.WithRedisPool(cfg.Redis.PoolSize, 0, 0),
			pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis user store: %w", err)
		}
		repo := internalrepo.NewCacheUserLimits(rc)
		if err := seed(repo, cfg.UserStore.Seed); err != nil {
			_ = rc.Close()
			return nil, err
		}
		return repo, nil

	case "clickhouse":
		return provideClickHouseUserLimits(cfg, l)

	case "http":
		opts := []xhttp.ClientOption{
			xhttp.WithBaseURL(cfg.Remote.BaseURL),
			xhttp.WithTimeout(cfg.Remote.Timeout),
		}
		if cfg.Remote.APIKey != "" {
			opts = append(opts, xhttp.WithHeader("Authorization", "Bearer "+cfg.Remote.APIKey))
		}
		return internalrepo.NewHTTPUserLimits(xhttp.NewClient(opts...)), nil

	default:
		repo := internalrepo.NewCacheUserLimits(pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(0)))
		if err := seed(repo, cfg.UserStore.Seed); err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func provideClickHouseUserLimits(cfg *config.Config, l *applogger.Logger) (repository.UserLimitRepository, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, pkgch.UserLimitsSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}

	repo := internalrepo.NewCHUserLimits(client, cfg.ClickHouse.Table, l)
	if err := seed(repo, cfg.UserStore.Seed); err != nil {
		_ = client.Close()
		return nil, err
	}
	return repo, nil
}

func seed(repo repository.UserLimitRepository, limits map[string]int64) error {
	if len(limits) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for userID, limit := range limits {
		if err := repo.SaveUserLimit(ctx, &models.UserLimit{UserID: userID, Limit: limit}); err != nil {
			return fmt.Errorf("seed user limit %s: %w", userID, err)
		}
	}
	return nil
}

// ProvideStrategy selects the single active limit policy.
func ProvideStrategy(cfg *config.Config, repo repository.UserLimitRepository) ratelimit.Strategy {
	mode := models.RefillMode(cfg.RateLimit.RefillMode)
	if cfg.RateLimit.Policy == ratelimit.PolicyUser {
		return ratelimit.NewUserPolicy(repo, cfg.RateLimit.User.RefillPeriod, mode)
	}
	return ratelimit.NewStaticPolicy(models.BucketConfig{
		Capacity:     cfg.RateLimit.Static.Capacity,
		RefillTokens: cfg.RateLimit.Static.RefillTokens,
		RefillPeriod: cfg.RateLimit.Static.RefillPeriod,
		RefillMode:   mode,
	})
}

// ProvidePolicyProvider wraps the strategy in the flushable config cache.
func ProvidePolicyProvider(strategy ratelimit.Strategy, m repository.Metrics) *ratelimit.Provider {
	return ratelimit.NewProvider(strategy, ratelimit.WithProviderMetrics(m))
}

// ProvideBucketStore creates the process-wide bucket store.
func ProvideBucketStore() *ratelimit.BucketStore {
	return ratelimit.NewBucketStore(nil)
}

// ProvideLimiter joins the store and the provider.
func ProvideLimiter(store *ratelimit.BucketStore, provider *ratelimit.Provider, m repository.Metrics) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, provider, m)
}

// ProvideCacheInvalidator schedules periodic flushes of the policy cache.
func ProvideCacheInvalidator(
	cfg *config.Config,
	provider *ratelimit.Provider,
	m repository.Metrics,
	l *applogger.Logger,
) *ratelimit.CacheInvalidator {
	return ratelimit.NewCacheInvalidator(provider, cfg.RateLimit.Cache.FlushInterval,
		ratelimit.WithInitialDelay(cfg.RateLimit.Cache.InitialDelay),
		ratelimit.WithInvalidatorLogger(l.With(applogger.String("component", "cache_invalidator"))),
		ratelimit.WithInvalidatorMetrics(m),
	)
}

// ProvideEventPublisher publishes limit changes to kafka, or drops them when kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

// ProvideLimitAdmin creates the operator use case.
func ProvideLimitAdmin(
	cfg *config.Config,
	repo repository.UserLimitRepository,
	pub repository.EventPublisher,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.LimitAdmin {
	return usecase.NewLimitAdmin(repo, pub, limiter, m, cfg.RateLimit.User.RefillPeriod, l)
}

// ProvideLimitEventsHandler flushes the local policy cache on limit-change events.
func ProvideLimitEventsHandler(
	cfg *config.Config,
	provider *ratelimit.Provider,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.LimitEventsHandler {
	return usecase.NewLimitEventsHandler(cfg.Kafka.Topic, provider, m,
		l.With(applogger.String("component", "limit_events")))
}

// ProvideKafkaConsumer creates a consumer for limit-change events, or nil when kafka is disabled.
// Each replica joins its own group so every replica sees every event.
func ProvideKafkaConsumer(
	cfg *config.Config,
	km *pkgkafka.ClientMetrics,
	handler *usecase.LimitEventsHandler,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(replicaGroupID(cfg.Kafka.GroupID)),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerMetrics(km),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.EventIDHook())
	consumer.RegisterHandler(handler)
	return consumer, nil
}

func replicaGroupID(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.NewString())
}

// ProvideKeyExtractor selects how requests are keyed.
func ProvideKeyExtractor(cfg *config.Config) mid.KeyExtractor {
	k := cfg.RateLimit.Key
	if k.Strategy == "header" {
		return mid.HeaderWithPrefix(k.Header, k.PathPrefix)
	}
	return mid.RemoteIP(k.TrustProxy)
}

// ProvideAdmission creates the admission filter.
func ProvideAdmission(
	cfg *config.Config,
	limiter *ratelimit.Limiter,
	extract mid.KeyExtractor,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.Admission {
	return mid.NewAdmission(limiter, extract,
		mid.WithSkipper(mid.SkipPaths(cfg.RateLimit.SkipPaths...)),
		mid.WithAdmissionMetrics(m),
		mid.WithAdmissionLogger(l.With(applogger.String("component", "admission"))),
	)
}

// ProvideHandlers registers the gateway routes and, when enabled, the admin API.
func ProvideHandlers(cfg *config.Config, l *applogger.Logger, admin *usecase.LimitAdmin) (xhttp.Handler, error) {
	gw, err := api.NewGatewayHandler(l, cfg.Upstream.URL)
	if err != nil {
		return nil, err
	}
	hs := xhttp.Handlers{}
	if cfg.Admin.Enabled {
		hs = append(hs, api.NewLimitsEchoHandler(l, admin, cfg.Admin.Token))
	}
	return append(hs, gw), nil
}

// ProvideHTTPServer builds the echo server with the admission filter installed globally.
func ProvideHTTPServer(
	cfg *config.Config,
	handler xhttp.Handler,
	admission *mid.Admission,
	repo repository.UserLimitRepository,
	reg *prometheus.Registry,
	l *applogger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(reg, reg),
		xhttp.WithMiddleware(admission.Middleware()),
	}
	if cfg.RateLimit.Policy == ratelimit.PolicyUser {
		opts = append(opts, xhttp.WithHealthCheck("user_store", repo.Health))
	}
	return xhttp.NewServer(handler, opts...)
}

// ProvideApp creates the application and registers resources to release on shutdown.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	inv *ratelimit.CacheInvalidator,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	pub repository.EventPublisher,
	repo repository.UserLimitRepository,
) *server.App {
	app := server.New(cfg, l, srv, inv, consumer)
	app.OnClose("user_store", repo.Close)
	if producer != nil {
		// The publisher owns the producer; the collector flushes through it first.
		app.OnClose("event_publisher", pub.Close)
		app.OnClose("log_collector", func() error { l.RemoveCollector(); return nil })
	}
	return app
}
