package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Processing     ProcessingConfig     `mapstructure:"processing"`
	Routing        RoutingConfig        `mapstructure:"routing"`
	Evidence       EvidenceConfig       `mapstructure:"evidence"`
	Container      ContainerConfig      `mapstructure:"container"`
	Lanes          []LaneConfig         `mapstructure:"lanes"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Management     ManagementConfig     `mapstructure:"management"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	// Store selects the message store: "postgres" or "memory".
	Store         string         `mapstructure:"store"`
	ContentStore  string         `mapstructure:"content_store"` // "postgres" or "mongodb"
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	BucketName string `mapstructure:"bucket_name"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	// Topics the connector consumes, one per link type.
	GatewayTopic   string `mapstructure:"gateway_topic"`
	BackendTopic   string `mapstructure:"backend_topic"`
	ConnectorTopic string `mapstructure:"connector_topic"`
	// Outbound messages for link partner X go to LinkTopicPrefix + X.
	LinkTopicPrefix   string      `mapstructure:"link_topic_prefix"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	Workers           int         `mapstructure:"workers"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ProcessingConfig struct {
	// EbmsIDSuffix is appended to generated ebMS message ids, e.g. "@connector.example.org".
	EbmsIDSuffix string `mapstructure:"ebms_id_suffix"`
}

type RoutingConfig struct {
	Reload ReloadConfig `mapstructure:"reload"`
}

type ReloadConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int `mapstructure:"jitter_max_milliseconds"`
}

type EvidenceConfig struct {
	HashAlgorithm string       `mapstructure:"hash_algorithm"`
	Signer        SignerConfig `mapstructure:"signer"`
}

type SignerConfig struct {
	Type    string        `mapstructure:"type"` // "document" or "remote"
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Issuer  string        `mapstructure:"issuer"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type ContainerConfig struct {
	Type    string        `mapstructure:"type"` // "passthrough" or "http"
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type LaneConfig struct {
	ID                        string        `mapstructure:"id"`
	DefaultBackendLink        string        `mapstructure:"default_backend_link"`
	DefaultGatewayLink        string        `mapstructure:"default_gateway_link"`
	RoutingEnabled            bool          `mapstructure:"routing_enabled"`
	SendEvidenceBackToBackend bool          `mapstructure:"send_evidence_back_to_backend"`
	PModes                    []PModeConfig `mapstructure:"pmodes"`
}

// PModeConfig permits one exchange. Empty party lists allow any party.
type PModeConfig struct {
	Service     string   `mapstructure:"service"`
	ServiceType string   `mapstructure:"service_type"`
	Action      string   `mapstructure:"action"`
	FromParties []string `mapstructure:"from_parties"`
	ToParties   []string `mapstructure:"to_parties"`
	Constraint  string   `mapstructure:"constraint"`
}

type DeduplicationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnRedisError string `mapstructure:"on_redis_error"`
}

type ManagementConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// Lane returns the configuration of a business domain.
func (c *Config) Lane(id string) (LaneConfig, bool) {
	for _, lane := range c.Lanes {
		if lane.ID == id {
			return lane, true
		}
	}
	return LaneConfig{}, false
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
