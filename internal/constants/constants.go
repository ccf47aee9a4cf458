package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEvidence = "evidence:"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	ServiceNameConnector  = "connector"
	ServiceNameManagement = "management-service"
)

// Link partner name used for messages the connector queues to itself.
const (
	LinkCleanup = "cleanup"
)

const (
	ContentStorePostgres = "postgres"
	ContentStoreMongoDB  = "mongodb"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)
