package configuration

import (
	"time"
)

type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Connection      map[string]string
}

type StreamConfig struct {
	// URL of the text/plain event feed to ingest.
	Url string
	// Maximum number of records retained per source; oldest evicted first.
	MaxEvents int
	// Interval at which pending records are flushed to recomputation.
	FlushInterval time.Duration
	// How long to keep retrying after a stream error before giving up.
	RestartAttempts uint
	RestartDelay    time.Duration
}

type StatusConfig struct {
	Postgres PostgresConfig
	// TTL for cached backend statuses.
	CacheExpiry time.Duration
}

type TaskboardConfiguration struct {
	MetricsPort uint16

	Stream StreamConfig
	Status StatusConfig
}
