package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M72.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	// SinkKind selects the external event stream implementation: "redis" or "kafka".
	SinkKind   string
	StreamName string
	DLQStream  string

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	OutboxRetryEvery   int

	SelfVerifySampleRatio        float64
	SelfVerifyConfidenceLimit    float64
	SinkBreakerFailureThreshold  int
	SinkBreakerCooldown          time.Duration
	AgentBreakerFailureThreshold int
	AgentBreakerCooldown         time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Events struct {
		SinkKind   string `yaml:"sink_kind"`
		StreamName string `yaml:"stream_name"`
		DLQStream  string `yaml:"dlq_stream"`
		KafkaTopic string `yaml:"kafka_topic"`
	} `yaml:"events"`
	SelfVerification struct {
		SampleRatio         float64 `yaml:"sample_ratio"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	} `yaml:"self_verification"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "M72-Workitem-Service",
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		SinkKind:                     "redis",
		StreamName:                   "workitem.events",
		DLQStream:                    "workitem.events.dlq",
		KafkaTopic:                   "workitem.events",
		MaxDBConns:                   20,
		OutboxPollInterval:           2 * time.Second,
		OutboxBatchSize:              100,
		OutboxClaimTTL:               30 * time.Second,
		OutboxMaxRetries:             5,
		OutboxRetryEvery:             10,
		SelfVerifySampleRatio:        0.2,
		SelfVerifyConfidenceLimit:    0.8,
		SinkBreakerFailureThreshold:  5,
		SinkBreakerCooldown:          30 * time.Second,
		AgentBreakerFailureThreshold: 5,
		AgentBreakerCooldown:         30 * time.Second,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Events.SinkKind != "" {
			cfg.SinkKind = f.Events.SinkKind
		}
		if f.Events.StreamName != "" {
			cfg.StreamName = f.Events.StreamName
		}
		if f.Events.DLQStream != "" {
			cfg.DLQStream = f.Events.DLQStream
		}
		if f.Events.KafkaTopic != "" {
			cfg.KafkaTopic = f.Events.KafkaTopic
		}
		if f.SelfVerification.SampleRatio > 0 {
			cfg.SelfVerifySampleRatio = f.SelfVerification.SampleRatio
		}
		if f.SelfVerification.ConfidenceThreshold > 0 {
			cfg.SelfVerifyConfidenceLimit = f.SelfVerification.ConfidenceThreshold
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.SinkKind = strings.ToLower(strings.TrimSpace(envOrDefault("EVENT_SINK_KIND", cfg.SinkKind)))
	cfg.StreamName = envOrDefault("EVENT_STREAM_NAME", cfg.StreamName)
	cfg.DLQStream = envOrDefault("EVENT_DLQ_STREAM", cfg.DLQStream)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.OutboxRetryEvery = envInt("OUTBOX_RETRY_EVERY", cfg.OutboxRetryEvery)

	cfg.SelfVerifySampleRatio = envFloat("SELF_VERIFY_SAMPLE_RATIO", cfg.SelfVerifySampleRatio)
	cfg.SelfVerifyConfidenceLimit = envFloat("SELF_VERIFY_CONFIDENCE_THRESHOLD", cfg.SelfVerifyConfidenceLimit)
	cfg.SinkBreakerFailureThreshold = envInt("SINK_BREAKER_FAILURE_THRESHOLD", cfg.SinkBreakerFailureThreshold)
	cfg.SinkBreakerCooldown = time.Duration(envInt("SINK_BREAKER_COOLDOWN_SECONDS", int(cfg.SinkBreakerCooldown.Seconds()))) * time.Second
	cfg.AgentBreakerFailureThreshold = envInt("AGENT_BREAKER_FAILURE_THRESHOLD", cfg.AgentBreakerFailureThreshold)
	cfg.AgentBreakerCooldown = time.Duration(envInt("AGENT_BREAKER_COOLDOWN_SECONDS", int(cfg.AgentBreakerCooldown.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.SinkKind != "redis" && cfg.SinkKind != "kafka" {
		return Config{}, fmt.Errorf("unsupported event sink kind %q", cfg.SinkKind)
	}
	if cfg.SinkKind == "kafka" && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("missing KAFKA_BROKERS for kafka sink")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envFloat parses float env vars with safe fallback on empty/invalid values.
func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
