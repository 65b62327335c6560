package db

import "strings"

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation. When constraintName is provided, the helper looks for the
// constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether the error references a foreign key
// constraint failure (Postgres or the sqlite driver used in tests).
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed")
}
