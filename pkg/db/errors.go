package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

// IsUniqueViolation reports a duplicate key on Postgres or SQLite. A non-empty
// constraint narrows the match to that constraint or column.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	dump := pkgerrors.Dump(err)
	if !dump.UniqueViolation() {
		return false
	}
	if constraint == "" {
		return true
	}
	// SQLite only names the column in its message
	return strings.Contains(dump.PGConstraint, constraint) || strings.Contains(err.Error(), constraint)
}
