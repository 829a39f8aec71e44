package sqldb

import (
	"strings"
	"time"

	"github.com/04d4/spinta/internal/endpoint"
)

// Driver names registered with database/sql.
const (
	DriverPQ  = "postgres" // github.com/lib/pq
	DriverPGX = "pgx"      // github.com/jackc/pgx/v5/stdlib
)

// Config holds SQL connection configuration derived from a Source.
type Config struct {
	Driver string
	DSN    string
	Schema string // optional schema filter

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ParseConfig builds a Config for driver from src. Option keys the drivers
// do not understand are removed from the DSN, and the pgx scheme suffix is
// dropped so the driver sees a plain postgres URL.
func ParseConfig(src *endpoint.Source, driver string) *Config {
	dsn := src.StripQuery(endpoint.OptionSchema, endpoint.OptionSampleSize)
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme := strings.ToLower(dsn[:i])
		if strings.HasSuffix(scheme, "+pgx") {
			dsn = "postgres" + dsn[i:]
		}
	}
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		Schema:          src.Schema(),
		MaxOpenConns:    src.IntOption("max_open_conns", 4),
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}
