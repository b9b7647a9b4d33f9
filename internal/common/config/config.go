package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Dispatch      DispatchConfig          `mapstructure:"dispatch"`
	Escalation    EscalationConfig        `mapstructure:"escalation"`
	Registry      RegistryConfig          `mapstructure:"registry"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DispatchConfig tunes the dispatch pipeline. Durations are milliseconds.
type DispatchConfig struct {
	TopN              int               `mapstructure:"top_n"`
	AcceptanceTimeout int               `mapstructure:"acceptance_timeout"`
	UrgencyTimeouts   map[string]int    `mapstructure:"urgency_timeouts"`
	FanoutConcurrency int               `mapstructure:"fanout_concurrency"`
	LatencyCeiling    int               `mapstructure:"latency_ceiling"`
	TimerBackend      string            `mapstructure:"timer_backend"` // local | redis
	TimerPollInterval int               `mapstructure:"timer_poll_interval"`
	TimerQueueKey     string            `mapstructure:"timer_queue_key"`
	Weights           ScoreWeights      `mapstructure:"weights"`
	Zones             map[string]string `mapstructure:"zones"` // neighborhood -> city
	Store             string            `mapstructure:"store"` // postgres | memory
}

type ScoreWeights struct {
	Rating         float64 `mapstructure:"rating"`
	Proximity      float64 `mapstructure:"proximity"`
	ResponseTime   float64 `mapstructure:"response_time"`
	Specialization float64 `mapstructure:"specialization"`
	Availability   float64 `mapstructure:"availability"`
}

func (w ScoreWeights) IsZero() bool {
	return w == ScoreWeights{}
}

type EscalationConfig struct {
	Threshold     float64           `mapstructure:"threshold"`
	MaxTurns      int               `mapstructure:"max_turns"`
	Weights       ComplexityWeights `mapstructure:"weights"`
	AgentQueueKey string            `mapstructure:"agent_queue_key"`
	DeskEmail     string            `mapstructure:"desk_email"`
}

type ComplexityWeights struct {
	Frustration float64 `mapstructure:"frustration"`
	Technical   float64 `mapstructure:"technical"`
	Turns       float64 `mapstructure:"turns"`
	Urgency     float64 `mapstructure:"urgency"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
