package spanstore

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Write failure classes reported by the writer diagnostics.
const (
	WriteErrorClassConnection = "connection"
	WriteErrorClassTimeout    = "timeout"
	WriteErrorClassContention = "contention"
	WriteErrorClassConstraint = "constraint"
	WriteErrorClassUnknown    = "unknown"
)

// ClassifyWriteError maps a span write error to a failure class.
func ClassifyWriteError(err error) string {
	if err == nil {
		return WriteErrorClassUnknown
	}

	// net.Error can report both a timeout and a connection failure.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WriteErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WriteErrorClassTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if class := postgresErrorClass(pgErr.Code); class != "" {
			return class
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return WriteErrorClassConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return WriteErrorClassConnection
	}

	// Driver errors that lost their type information.
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection refused", "broken pipe", "no such host"):
		return WriteErrorClassConnection
	case containsAny(msg, "timeout", "deadline exceeded"):
		return WriteErrorClassTimeout
	case containsAny(msg, "sqlite_busy", "database is locked"):
		return WriteErrorClassContention
	case containsAny(msg, "unique constraint", "constraint failed", "violates", "duplicate key"):
		return WriteErrorClassConstraint
	}
	return WriteErrorClassUnknown
}

// postgresErrorClass groups SQLSTATE codes. Class 23 is integrity constraint
// violation, class 08 is connection exception, 40001/40P01/55P03 are lock
// contention and 57014 is a cancelled statement.
func postgresErrorClass(code string) string {
	switch {
	case strings.HasPrefix(code, "23"):
		return WriteErrorClassConstraint
	case strings.HasPrefix(code, "08"):
		return WriteErrorClassConnection
	case code == "40001", code == "40P01", code == "55P03":
		return WriteErrorClassContention
	case code == "57014":
		return WriteErrorClassTimeout
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
