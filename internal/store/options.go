package store

import "strings"

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN: a file path for SQLite, a connection
// string for Postgres.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs
// are URL-style (postgres:// or postgresql://) or key=value strings with a
// host= entry; everything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
