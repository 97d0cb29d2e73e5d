package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/acme/group-call-bot/internal/auth"
	"github.com/acme/group-call-bot/internal/config"
	"github.com/acme/group-call-bot/internal/infra/redis"
	"github.com/acme/group-call-bot/internal/queue"
	callsvc "github.com/acme/group-call-bot/internal/service/call"
	"github.com/acme/group-call-bot/internal/telemetry"
	"github.com/acme/group-call-bot/internal/telephony"
	"github.com/acme/group-call-bot/internal/telephony/graph"
	"github.com/acme/group-call-bot/internal/telephony/mock"
	"github.com/acme/group-call-bot/pkg/logger"
)

const metricsNamespace = "callbot"

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// Redis and Kafka are nil when not configured.
	Redis *redis.Client
	Kafka *queue.Kafka

	// lazily initialised components
	components struct {
		once sync.Once
		set  *components
	}
}

type components struct {
	Tokens       auth.TokenSource
	Clients      *auth.Provider
	Platform     telephony.Platform
	Publisher    *queue.Publisher
	Metrics      *telemetry.Metrics
	Orchestrator *callsvc.Orchestrator
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	container := New(cfg, lg)

	if cfg.Redis.Address != "" {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		container.Redis = redisClient
	}

	if cfg.Kafka.Enabled() {
		kafka, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		container.Kafka = kafka
	}

	return container, nil
}

// New returns a container without external connections. Build attaches
// Redis and Kafka when they are configured.
func New(cfg *config.Config, lg *logger.Logger) *Container {
	return &Container{Config: cfg, Logger: lg}
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		cfg := c.Config
		set := &components{}

		if cfg.Telemetry.MetricsEnabled {
			set.Metrics = telemetry.NewMetrics(metricsNamespace)
		}

		if c.Kafka != nil {
			set.Publisher = queue.NewPublisher(c.Kafka, cfg.Kafka.OutcomeTopic, cfg.Kafka.NotificationTopic)
		}

		var tokens auth.TokenSource = auth.NewClientCredentials(cfg.Auth, http.DefaultClient)
		if cfg.Auth.Cache.Enabled && c.Redis != nil {
			tokens = auth.NewRedisCache(tokens, c.Redis.Inner(), cfg.Auth, c.Logger)
		}
		set.Tokens = tokens
		set.Clients = auth.NewProvider(tokens, http.DefaultClient)

		switch cfg.Calling.Provider {
		case config.ProviderMock:
			set.Platform = mock.NewPlatform(cfg.Calling)
		default:
			set.Platform = graph.NewClient(cfg.Graph, cfg.Auth.TenantID, set.Clients, c.Logger)
		}

		var publisher callsvc.OutcomePublisher
		if set.Publisher != nil {
			publisher = set.Publisher
		}
		set.Orchestrator = callsvc.NewOrchestrator(set.Platform, publisher, set.Metrics, c.Logger, callsvc.Options{
			CallbackURL:     cfg.Bot.CallbackURL(),
			DefaultAudioURL: cfg.Bot.DefaultAudioURL,
			PollInterval:    cfg.Calling.PollInterval,
			ConnectTimeout:  cfg.Calling.ConnectTimeout,
		})

		c.components.set = set
	})
}

// Components exposes the initialized application components.
func (c *Container) Components() *components {
	c.initComponents()
	return c.components.set
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if set := c.components.set; set != nil && set.Publisher != nil {
		if err := set.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return errors.Join(errs...)
}

// EnsureTopics ensures the outcome and notification topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	if c.Kafka == nil {
		return nil
	}
	return c.Kafka.EnsureTopics(ctx, c.Kafka.Topics(), 12, 1)
}
