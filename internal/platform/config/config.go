package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"safecircle/pkg/platform/secrets"
)

// Config is the full process configuration. Load applies defaults, then an
// optional YAML file, then environment overrides.
type Config struct {
	Server       Server             `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Escalation   EscalationConfig   `yaml:"escalation"`
	Notification NotificationConfig `yaml:"notification"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `yaml:"addr"`
	JWTSigningKey     string        `yaml:"jwt_signing_key"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig is optional; an empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional; an empty URL selects the in-memory rate limiter.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig is optional; no brokers disables domain event streaming.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	ClientID          string   `yaml:"client_id"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

type EscalationConfig struct {
	// StartingLevels maps an escalation context (e.g. "health") to its initial level.
	StartingLevels map[string]string `yaml:"starting_levels"`
	// AcknowledgmentSLA maps a severity to how long responders at the current
	// level have to acknowledge before the event climbs one level. Zero disables.
	AcknowledgmentSLA map[string]time.Duration `yaml:"acknowledgment_sla"`
	ConflictRetries   int                      `yaml:"conflict_retries"`
}

type ChannelLimit struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type NotificationConfig struct {
	Shards          int                     `yaml:"shards"`
	SendTimeout     time.Duration           `yaml:"send_timeout"`
	MaxAttempts     int                     `yaml:"max_attempts"`
	BackoffBase     time.Duration           `yaml:"backoff_base"`
	BackoffMax      time.Duration           `yaml:"backoff_max"`
	ChannelLimits   map[string]ChannelLimit `yaml:"channel_limits"`
	ChannelQPS      map[string]float64      `yaml:"channel_qps"`
	Breaker         BreakerConfig           `yaml:"breaker"`
	DigestSchedules map[string]string       `yaml:"digest_schedules"`
	// CallbackKeyHashes holds a bcrypt hash per channel of the key its
	// provider sends with delivery callbacks.
	CallbackKeyHashes map[string]string `yaml:"callback_key_hashes"`
}

var (
	knownContexts   = []string{"health", "safety", "property", "emotional", "financial", "legal", "other"}
	knownLevels     = []string{"INDIVIDUAL", "FAMILY", "COMMUNITY", "PROFESSIONAL"}
	knownSeverities = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
	knownChannels   = []string{"WEB", "EMAIL", "SMS", "PUSH"}
	knownDigests    = []string{"HOURLY", "DAILY", "WEEKLY"}
)

// Default returns the built-in configuration used for local development.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			JWTSigningKey:     "dev-secret-key-change-in-production",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:             "safecircle.escalation-events",
			ClientID:          "safecircle",
			Partitions:        6,
			ReplicationFactor: 1,
		},
		Escalation: EscalationConfig{
			StartingLevels: map[string]string{},
			AcknowledgmentSLA: map[string]time.Duration{
				"CRITICAL": 5 * time.Minute,
				"HIGH":     15 * time.Minute,
				"MEDIUM":   time.Hour,
			},
			ConflictRetries: 3,
		},
		Notification: NotificationConfig{
			Shards:      8,
			SendTimeout: 10 * time.Second,
			MaxAttempts: 3,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  10 * time.Second,
			ChannelLimits: map[string]ChannelLimit{
				"WEB":   {Max: 100, Window: time.Hour},
				"PUSH":  {Max: 30, Window: time.Hour},
				"EMAIL": {Max: 20, Window: time.Hour},
				"SMS":   {Max: 5, Window: time.Hour},
			},
			ChannelQPS: map[string]float64{
				"WEB":   50,
				"PUSH":  20,
				"EMAIL": 10,
				"SMS":   2,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 3,
				Cooldown:         30 * time.Second,
			},
			DigestSchedules: map[string]string{
				"HOURLY": "0 * * * *",
				"DAILY":  "0 8 * * *",
				"WEEKLY": "0 8 * * 1",
			},
		},
	}
}

// Load builds a Config. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml unmarshal: %w", err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from defaults and environment variables only.
func FromEnv() (Config, error) {
	return Load(os.Getenv("SAFECIRCLE_CONFIG"))
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SAFECIRCLE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("SAFECIRCLE_JWT_SIGNING_KEY"); v != "" {
		cfg.Server.JWTSigningKey = v
	}
	if v := getenv("SAFECIRCLE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("SAFECIRCLE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("SAFECIRCLE_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := getenv("SAFECIRCLE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	for _, ch := range knownChannels {
		v := getenv("SAFECIRCLE_" + ch + "_CALLBACK_KEY_HASH")
		if v == "" {
			continue
		}
		if cfg.Notification.CallbackKeyHashes == nil {
			cfg.Notification.CallbackKeyHashes = make(map[string]string)
		}
		cfg.Notification.CallbackKeyHashes[ch] = v
	}
}

func splitList(v string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// Validate rejects non-positive limits and unknown enum keys.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.JWTSigningKey == "" {
		errs = append(errs, errors.New("server.jwt_signing_key is required"))
	}
	for ctx, level := range c.Escalation.StartingLevels {
		if !contains(knownContexts, ctx) {
			errs = append(errs, fmt.Errorf("escalation.starting_levels: unknown context %q", ctx))
		}
		if !contains(knownLevels, level) {
			errs = append(errs, fmt.Errorf("escalation.starting_levels: unknown level %q", level))
		}
	}
	for sev, d := range c.Escalation.AcknowledgmentSLA {
		if !contains(knownSeverities, sev) {
			errs = append(errs, fmt.Errorf("escalation.acknowledgment_sla: unknown severity %q", sev))
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("escalation.acknowledgment_sla[%s] must not be negative", sev))
		}
	}
	if c.Escalation.ConflictRetries < 0 {
		errs = append(errs, errors.New("escalation.conflict_retries must not be negative"))
	}
	n := c.Notification
	if n.Shards <= 0 {
		errs = append(errs, errors.New("notification.shards must be positive"))
	}
	if n.SendTimeout <= 0 {
		errs = append(errs, errors.New("notification.send_timeout must be positive"))
	}
	if n.MaxAttempts <= 0 {
		errs = append(errs, errors.New("notification.max_attempts must be positive"))
	}
	if n.BackoffBase <= 0 || n.BackoffMax < n.BackoffBase {
		errs = append(errs, errors.New("notification backoff must satisfy 0 < backoff_base <= backoff_max"))
	}
	for ch, l := range n.ChannelLimits {
		if !contains(knownChannels, ch) {
			errs = append(errs, fmt.Errorf("notification.channel_limits: unknown channel %q", ch))
		}
		if l.Max <= 0 || l.Window <= 0 {
			errs = append(errs, fmt.Errorf("notification.channel_limits[%s] must have positive max and window", ch))
		}
	}
	for ch, qps := range n.ChannelQPS {
		if !contains(knownChannels, ch) {
			errs = append(errs, fmt.Errorf("notification.channel_qps: unknown channel %q", ch))
		}
		if qps <= 0 {
			errs = append(errs, fmt.Errorf("notification.channel_qps[%s] must be positive", ch))
		}
	}
	if n.Breaker.FailureThreshold <= 0 || n.Breaker.SuccessThreshold <= 0 || n.Breaker.Cooldown <= 0 {
		errs = append(errs, errors.New("notification.breaker thresholds and cooldown must be positive"))
	}
	for freq := range n.DigestSchedules {
		if !contains(knownDigests, freq) {
			errs = append(errs, fmt.Errorf("notification.digest_schedules: unknown frequency %q", freq))
		}
	}
	for ch, hash := range n.CallbackKeyHashes {
		if !contains(knownChannels, ch) {
			errs = append(errs, fmt.Errorf("notification.callback_key_hashes: unknown channel %q", ch))
		}
		if err := secrets.CheckHash(hash); err != nil {
			errs = append(errs, fmt.Errorf("notification.callback_key_hashes[%s]: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
