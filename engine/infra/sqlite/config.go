package sqlite

import "time"

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// Config captures SQLite store configuration derived from application settings.
type Config struct {
	// Path is the database location or ":memory:" for in-memory deployments.
	Path string

	// MaxOpenConns controls the pool size exposed by database/sql.
	MaxOpenConns int

	// ConnMaxIdleTime bounds idle connection retention.
	ConnMaxIdleTime time.Duration

	// BusyTimeout configures sqlite busy timeout via PRAGMA busy_timeout.
	BusyTimeout time.Duration
}

func (c *Config) isMemory() bool {
	return c.Path == MemoryPath || c.Path == ""
}
