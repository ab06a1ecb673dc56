package sqlutil

import (
	"database/sql"
	"time"
)

// Helper functions for converting between Go types and sql.Null* types

// ToSqlString converts a string to sql.NullString, treating "" as NULL
func ToSqlString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

// FromSqlString converts sql.NullString to a Go string, NULL becoming ""
func FromSqlString(val sql.NullString) string {
	if !val.Valid {
		return ""
	}
	return val.String
}

// ToSqlTime converts a Go time to a valid sql.NullTime
func ToSqlTime(val time.Time) sql.NullTime {
	return sql.NullTime{Time: val, Valid: true}
}

// FromSqlTime converts sql.NullTime to a Go time pointer
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}
