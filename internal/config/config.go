package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Gate      GateConfig      `mapstructure:"gate"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StoreConfig selects where leads and call logs live.
type StoreConfig struct {
	Driver string       `mapstructure:"driver"` // nocodb, postgres or memory
	NocoDB NocoDBConfig `mapstructure:"nocodb"`
}

type NocoDBConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	LeadsTable    string        `mapstructure:"leads_table"`
	CallLogsTable string        `mapstructure:"call_logs_table"`
	PageSize      int           `mapstructure:"page_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts             []string      `mapstructure:"hosts"`
	Port              int           `mapstructure:"port"`
	Keyspace          string        `mapstructure:"keyspace"`
	Consistency       string        `mapstructure:"consistency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DisableInitSchema bool          `mapstructure:"disable_init_schema"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	EventsTopic     string        `mapstructure:"events_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	Partitions      int           `mapstructure:"partitions"`
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

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	Insecure        bool          `mapstructure:"insecure"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProviderConfig configures the voice provider.
type ProviderConfig struct {
	Name               string            `mapstructure:"name"` // vapi or mock
	BaseURL            string            `mapstructure:"base_url"`
	APIKey             string            `mapstructure:"api_key"`
	PhoneNumberID      string            `mapstructure:"phone_number_id"`
	DefaultAssistant   string            `mapstructure:"default_assistant"`
	Assistants         map[string]string `mapstructure:"assistants"`
	CountryCode        string            `mapstructure:"country_code"`
	RequestTimeout     time.Duration     `mapstructure:"request_timeout"`
	ListLimit          int               `mapstructure:"list_limit"`
	RecallFirstMessage string            `mapstructure:"recall_first_message"`
}

// GateConfig bounds how many provider calls may be active at once.
type GateConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxPolls      int           `mapstructure:"max_polls"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type ReconcileConfig struct {
	RetryCeiling    int           `mapstructure:"retry_ceiling"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	EnrichThrottle  time.Duration `mapstructure:"enrich_throttle"`
	TranscriptLimit int           `mapstructure:"transcript_limit"`
	Interval        time.Duration `mapstructure:"interval"`
}

type DialerConfig struct {
	Statuses      []string      `mapstructure:"statuses"`
	ExcludedNames []string      `mapstructure:"excluded_names"`
	CallSpacing   time.Duration `mapstructure:"call_spacing"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	LockKeyPrefix string        `mapstructure:"lock_key_prefix"`
	CallingHours  CallingHours  `mapstructure:"calling_hours"`
}

// CallingHours restricts dialing to a daily window in a time zone. Start and
// End are HH:MM; an empty Start disables the window. End before Start spans midnight.
type CallingHours struct {
	TimeZone string   `mapstructure:"time_zone"`
	Start    string   `mapstructure:"start"`
	End      string   `mapstructure:"end"`
	Days     []string `mapstructure:"days"`
}

type ScheduleConfig struct {
	Spacing         time.Duration `mapstructure:"spacing"`
	Count           int           `mapstructure:"count"`
	OverdueGap      time.Duration `mapstructure:"overdue_gap"`
	OverdueInterval time.Duration `mapstructure:"overdue_interval"`
}

// Load reads configuration from file and environment variables. A missing
// file is tolerated so that deployments can configure purely through env.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("config: failed to read config file: %w", err)
				}
			}
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

// Validate rejects settings that would let the dialer run unsafely.
func (c *Config) Validate() error {
	if c.Gate.MaxConcurrent <= 0 {
		return fmt.Errorf("config: gate.max_concurrent must be positive")
	}
	if c.Gate.MaxPolls <= 0 {
		return fmt.Errorf("config: gate.max_polls must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive")
	}
	switch c.Store.Driver {
	case "nocodb", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Provider.Name {
	case "vapi", "mock":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	return nil
}

// AssistantID resolves a named assistant, falling back to the default one.
func (p ProviderConfig) AssistantID(name string) string {
	if name != "" {
		if id, ok := p.Assistants[strings.ToLower(name)]; ok {
			return id
		}
	}
	if id, ok := p.Assistants[strings.ToLower(p.DefaultAssistant)]; ok {
		return id
	}
	return p.DefaultAssistant
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "outbound-dialer")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", time.Minute)

	v.SetDefault("store.driver", "nocodb")
	v.SetDefault("store.nocodb.base_url", "")
	v.SetDefault("store.nocodb.token", "")
	v.SetDefault("store.nocodb.leads_table", "")
	v.SetDefault("store.nocodb.call_logs_table", "")
	v.SetDefault("store.nocodb.page_size", 200)
	v.SetDefault("store.nocodb.batch_size", 10)
	v.SetDefault("store.nocodb.timeout", 15*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("postgres.max_conn_idle_time", 5*time.Minute)

	v.SetDefault("scylla.hosts", []string{})
	v.SetDefault("scylla.port", 9042)
	v.SetDefault("scylla.keyspace", "dialer")
	v.SetDefault("scylla.consistency", "local_quorum")
	v.SetDefault("scylla.timeout", 5*time.Second)
	v.SetDefault("scylla.disable_init_schema", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "outbound-dialer")
	v.SetDefault("kafka.events_topic", "dialer.call-events")
	v.SetDefault("kafka.consumer_group_id", "dialer-journal")
	v.SetDefault("kafka.commit_interval", time.Second)
	v.SetDefault("kafka.partitions", 6)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.min_idle_conns", 0)
	v.SetDefault("redis.max_retries", 2)

	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.shutdown_timeout", 5*time.Second)

	v.SetDefault("provider.name", "vapi")
	v.SetDefault("provider.base_url", "https://api.vapi.ai")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.phone_number_id", "")
	v.SetDefault("provider.default_assistant", "")
	v.SetDefault("provider.assistants", map[string]string{})
	v.SetDefault("provider.country_code", "34")
	v.SetDefault("provider.request_timeout", 20*time.Second)
	v.SetDefault("provider.list_limit", 100)
	v.SetDefault("provider.recall_first_message", "")

	v.SetDefault("gate.max_concurrent", 10)
	v.SetDefault("gate.poll_interval", 15*time.Second)
	v.SetDefault("gate.max_polls", 40)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 15*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", 0)

	v.SetDefault("reconcile.retry_ceiling", 2)
	v.SetDefault("reconcile.retry_delay", 30*time.Minute)
	v.SetDefault("reconcile.enrich_throttle", 350*time.Millisecond)
	v.SetDefault("reconcile.transcript_limit", 5000)
	v.SetDefault("reconcile.interval", 0)

	v.SetDefault("dialer.statuses", []string{"Programado", "Reintentar"})
	v.SetDefault("dialer.excluded_names", []string{})
	v.SetDefault("dialer.call_spacing", 10*time.Second)
	v.SetDefault("dialer.lock_ttl", 10*time.Minute)
	v.SetDefault("dialer.lock_key_prefix", "dialer:lock")
	v.SetDefault("dialer.calling_hours.time_zone", "Europe/Madrid")
	v.SetDefault("dialer.calling_hours.start", "")
	v.SetDefault("dialer.calling_hours.end", "")
	v.SetDefault("dialer.calling_hours.days", []string{"mon", "tue", "wed", "thu", "fri"})

	v.SetDefault("schedule.spacing", 2*time.Minute)
	v.SetDefault("schedule.count", 200)
	v.SetDefault("schedule.overdue_gap", 5*time.Minute)
	v.SetDefault("schedule.overdue_interval", 3*time.Minute)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
