package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TimerBackendLocal = "local"
	TimerBackendRedis = "redis"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finalize(v)
}

// LoadFromFile reads a single YAML file; used by dispatchctl and tests.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Integrations.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Integrations.AWS.Region = val
		}
	}
	if cfg.Observability.JaegerEndpoint == "" {
		if val := os.Getenv("JAEGER_ENDPOINT"); val != "" {
			cfg.Observability.JaegerEndpoint = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.HTTPPort == 0 {
		cfg.App.HTTPPort = 8080
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "dispatch-events"
	}

	// Dispatch defaults
	d := &cfg.Dispatch
	if d.TopN == 0 {
		d.TopN = 3
	}
	if d.AcceptanceTimeout == 0 {
		d.AcceptanceTimeout = 600000
	}
	if d.FanoutConcurrency == 0 {
		d.FanoutConcurrency = 4
	}
	if d.LatencyCeiling == 0 {
		d.LatencyCeiling = 600000
	}
	if d.TimerBackend == "" {
		d.TimerBackend = TimerBackendLocal
	}
	if d.TimerPollInterval == 0 {
		d.TimerPollInterval = 1000
	}
	if d.TimerQueueKey == "" {
		d.TimerQueueKey = "dispatch:timers"
	}
	if d.Store == "" {
		d.Store = StorePostgres
	}
	if d.Weights.IsZero() {
		d.Weights = ScoreWeights{Rating: 0.4, Proximity: 0.3, ResponseTime: 0.2, Specialization: 0.1}
	}

	// Escalation defaults
	e := &cfg.Escalation
	if e.Threshold == 0 {
		e.Threshold = 0.6
	}
	if e.MaxTurns == 0 {
		e.MaxTurns = 10
	}
	if e.Weights == (ComplexityWeights{}) {
		e.Weights = ComplexityWeights{Frustration: 0.35, Technical: 0.25, Turns: 0.20, Urgency: 0.20}
	}
	if e.AgentQueueKey == "" {
		e.AgentQueueKey = "conversation:agent_queue"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "service-dispatch"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	switch cfg.Dispatch.Store {
	case StorePostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("dispatch.store must be %q or %q", StorePostgres, StoreMemory)
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Dispatch.TimerBackend {
	case TimerBackendLocal, TimerBackendRedis:
	default:
		return fmt.Errorf("dispatch.timer_backend must be %q or %q", TimerBackendLocal, TimerBackendRedis)
	}

	if cfg.Dispatch.TopN < 1 {
		return fmt.Errorf("dispatch.top_n must be positive")
	}
	if cfg.Dispatch.AcceptanceTimeout < 0 {
		return fmt.Errorf("dispatch.acceptance_timeout must not be negative")
	}
	for urgency, ms := range cfg.Dispatch.UrgencyTimeouts {
		if ms <= 0 {
			return fmt.Errorf("dispatch.urgency_timeouts.%s must be positive", urgency)
		}
	}

	w := cfg.Dispatch.Weights
	if w.Rating < 0 || w.Proximity < 0 || w.ResponseTime < 0 || w.Specialization < 0 || w.Availability < 0 {
		return fmt.Errorf("dispatch.weights must not be negative")
	}

	if cfg.Escalation.Threshold <= 0 || cfg.Escalation.Threshold > 1 {
		return fmt.Errorf("escalation.threshold must be in (0, 1]")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// AcceptanceTimeoutFor returns the per-urgency override, falling back to dispatch.acceptance_timeout.
func (d DispatchConfig) AcceptanceTimeoutFor(urgency string) time.Duration {
	if ms, ok := d.UrgencyTimeouts[urgency]; ok && ms > 0 {
		return GetDuration(ms)
	}
	return GetDuration(d.AcceptanceTimeout)
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
