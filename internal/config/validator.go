package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"connector/pkg/digest"
)

var linkNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,200}$`)

// ValidLinkName reports whether name can address a link partner topic.
func ValidLinkName(name string) bool {
	return linkNamePattern.MatchString(name)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateBroker(cfg.Broker) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateEvidence(cfg.Evidence) },
		func() error { return validateContainer(cfg.Container) },
		func() error { return validateLanes(cfg.Lanes) },
		func() error { return validateDeduplication(cfg.Deduplication) },
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %q (supported: kafka)", cfg.Type),
		}
	}
	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Workers < 0 {
		return &ValidationError{
			Field:   "broker.kafka.workers",
			Message: "workers must be non-negative",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	switch cfg.Store {
	case "", "postgres":
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	case "memory":
	default:
		return &ValidationError{
			Field:   "database.store",
			Message: fmt.Sprintf("unknown store: %q (supported: postgres, memory)", cfg.Store),
		}
	}

	switch cfg.ContentStore {
	case "", "postgres":
	case "mongodb":
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "database.content_store",
			Message: fmt.Sprintf("unknown content store: %q (supported: postgres, mongodb)", cfg.ContentStore),
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "deduplication.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	validOnError := map[string]bool{
		"allow": true, "deny": true,
	}
	if cfg.OnRedisError != "" && !validOnError[strings.ToLower(cfg.OnRedisError)] {
		return &ValidationError{
			Field:   "deduplication.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, deny)", cfg.OnRedisError),
		}
	}

	return nil
}

func validateEvidence(cfg EvidenceConfig) error {
	if cfg.HashAlgorithm != "" {
		if _, err := digest.ParseAlgorithm(cfg.HashAlgorithm); err != nil {
			return &ValidationError{
				Field:   "evidence.hash_algorithm",
				Message: fmt.Sprintf("invalid hash algorithm: %s (valid: MD5, SHA1, SHA256, SHA512)", cfg.HashAlgorithm),
			}
		}
	}

	switch cfg.Signer.Type {
	case "", "document":
	case "remote":
		if cfg.Signer.URL == "" {
			return &ValidationError{
				Field:   "evidence.signer.url",
				Message: "remote signer requires a URL",
			}
		}
	default:
		return &ValidationError{
			Field:   "evidence.signer.type",
			Message: fmt.Sprintf("unknown signer type: %q (supported: document, remote)", cfg.Signer.Type),
		}
	}

	return nil
}

func validateContainer(cfg ContainerConfig) error {
	switch cfg.Type {
	case "", "passthrough":
	case "http":
		if cfg.URL == "" {
			return &ValidationError{
				Field:   "container.url",
				Message: "http container service requires a URL",
			}
		}
	default:
		return &ValidationError{
			Field:   "container.type",
			Message: fmt.Sprintf("unknown container type: %q (supported: passthrough, http)", cfg.Type),
		}
	}
	return nil
}

func validateLanes(lanes []LaneConfig) error {
	seen := make(map[string]bool, len(lanes))
	for i, lane := range lanes {
		field := fmt.Sprintf("lanes[%d]", i)
		if lane.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "lane id is required"}
		}
		if seen[lane.ID] {
			return &ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate lane id %q", lane.ID)}
		}
		seen[lane.ID] = true

		if lane.DefaultGatewayLink == "" {
			return &ValidationError{Field: field + ".default_gateway_link", Message: "default gateway link is required"}
		}
		if !ValidLinkName(lane.DefaultGatewayLink) {
			return &ValidationError{
				Field:   field + ".default_gateway_link",
				Message: fmt.Sprintf("invalid link partner name %q", lane.DefaultGatewayLink),
			}
		}
		if lane.DefaultBackendLink != "" && !ValidLinkName(lane.DefaultBackendLink) {
			return &ValidationError{
				Field:   field + ".default_backend_link",
				Message: fmt.Sprintf("invalid link partner name %q", lane.DefaultBackendLink),
			}
		}
		for j, pm := range lane.PModes {
			if pm.Service == "" || pm.Action == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("%s.pmodes[%d]", field, j),
					Message: "service and action are required",
				}
			}
		}
	}
	return nil
}
