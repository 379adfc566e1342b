package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// postgres (pgx or lib/pq) or sqlite. When target is non-empty the violated
// constraint, or the message for drivers that do not expose one, must
// mention it; index names embed the column, so a column name works for both
// dialects.
func IsUniqueViolation(err error, target string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return target == "" || strings.Contains(pgErr.ConstraintName, target) || strings.Contains(pgErr.Message, target)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pgUniqueViolation {
			return false
		}
		return target == "" || strings.Contains(pqErr.Constraint, target) || strings.Contains(pqErr.Message, target)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique && liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return false
		}
		return target == "" || strings.Contains(liteErr.Error(), target)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return target == "" || strings.Contains(msg, target)
}
