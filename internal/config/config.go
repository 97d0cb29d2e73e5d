package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted by calling.provider.
const (
	ProviderGraph = "graph"
	ProviderMock  = "mock"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Bot       BotConfig       `mapstructure:"bot"`
	Calling   CallingConfig   `mapstructure:"calling"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// GraphConfig points at the calling platform's REST API.
type GraphConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig parameterizes the client-credentials exchange.
type AuthConfig struct {
	TenantID     string          `mapstructure:"tenant_id"`
	ClientID     string          `mapstructure:"client_id"`
	ClientSecret string          `mapstructure:"client_secret"`
	Authority    string          `mapstructure:"authority"`
	Scope        string          `mapstructure:"scope"`
	Cache        AuthCacheConfig `mapstructure:"cache"`
}

// TokenURL is the identity provider's token endpoint for the tenant.
func (c AuthConfig) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(c.Authority, "/"), c.TenantID)
}

type AuthCacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

type BotConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	CallbackPath    string `mapstructure:"callback_path"`
	DefaultAudioURL string `mapstructure:"default_audio_url"`
}

// CallbackURL is the fully-qualified address the platform posts call events to.
func (c BotConfig) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.CallbackPath, "/")
}

type CallingConfig struct {
	Provider         string        `mapstructure:"provider"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MockConnectAfter int           `mapstructure:"mock_connect_after"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	OutcomeTopic      string   `mapstructure:"outcome_topic"`
	NotificationTopic string   `mapstructure:"notification_topic"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// legacyEnv maps keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"auth.tenant_id":        "TenantId",
	"auth.client_id":        "MicrosoftAppId",
	"auth.client_secret":    "MicrosoftAppSecret",
	"bot.base_url":          "BotBaseUrl",
	"bot.default_audio_url": "DefaultAudioUrl",
	"graph.base_url":        "GraphBaseUrl",
}

const envPrefix = "CALLBOT"

// Load reads configuration from file and environment variables. An empty
// path loads from defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(NewEnvReplacer())
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + NewEnvReplacer().Replace(strings.ToUpper(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "group-call-bot")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 90*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.request_timeout", 15*time.Second)

	v.SetDefault("auth.tenant_id", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.authority", "https://login.microsoftonline.com")
	v.SetDefault("auth.scope", "https://graph.microsoft.com/.default")
	v.SetDefault("auth.cache.enabled", false)
	v.SetDefault("auth.cache.key_prefix", "callbot:token")
	v.SetDefault("auth.cache.leeway", time.Minute)

	v.SetDefault("bot.base_url", "")
	v.SetDefault("bot.callback_path", "/api/calling")
	v.SetDefault("bot.default_audio_url", "")

	v.SetDefault("calling.provider", ProviderGraph)
	v.SetDefault("calling.poll_interval", 2*time.Second)
	v.SetDefault("calling.connect_timeout", 60*time.Second)
	v.SetDefault("calling.mock_connect_after", 2)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 0)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "group-call-bot")
	v.SetDefault("kafka.outcome_topic", "callbot.call-outcomes")
	v.SetDefault("kafka.notification_topic", "callbot.platform-notifications")

	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.shutdown_timeout", 5*time.Second)
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Bot.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: bot.base_url must be an absolute URL, got %q", c.Bot.BaseURL)
	}
	if c.Calling.PollInterval <= 0 {
		return fmt.Errorf("config: calling.poll_interval must be positive")
	}
	if c.Calling.ConnectTimeout <= 0 {
		return fmt.Errorf("config: calling.connect_timeout must be positive")
	}
	switch c.Calling.Provider {
	case ProviderGraph, ProviderMock:
	default:
		return fmt.Errorf("config: unknown calling.provider %q", c.Calling.Provider)
	}
	if c.Auth.Cache.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("config: auth.cache.enabled requires redis.address")
	}
	return nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
