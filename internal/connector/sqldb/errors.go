package sqldb

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/04d4/spinta/internal/core"
)

// SQLSTATE classes that mean the session is unusable.
const (
	classConnection = "08"
	classAuth       = "28"
	classInvalidDB  = "3D"
)

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// classifyConnect turns a connect/ping failure into a ConnectionError.
// Network failures are retryable; authentication and unknown-database
// failures are not.
func classifyConnect(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := sqlState(err); ok && len(code) >= 2 {
		switch code[:2] {
		case classAuth, classInvalidDB:
			return core.Wrap(core.KindConnection, false, err)
		case classConnection:
			return core.Wrap(core.KindConnection, true, err)
		}
		return core.Wrap(core.KindConnection, false, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return core.Wrap(core.KindConnection, true, err)
	}
	return core.Wrap(core.KindConnection, false, err)
}

// classifyQuery wraps a metadata query failure. A lost session surfaces as
// a ConnectionError, everything else as an EntityInspectionError.
func classifyQuery(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := sqlState(err); ok && len(code) >= 2 && code[:2] == classConnection {
		return core.Wrap(core.KindConnection, true, err)
	}
	return core.Wrap(core.KindEntityInspection, false, err)
}
