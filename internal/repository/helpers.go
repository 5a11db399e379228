package repository

import (
	"database/sql"
	"strings"
	"time"
)

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime stores timestamps in UTC so lexicographic comparisons in
// SQL agree with time order regardless of the server zone.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// whereClause builds a WHERE clause from optional column=value filters,
// skipping filters with empty values.
func whereClause(filters map[string]string) (string, []any) {
	var conds []string
	var args []any
	// Deterministic order keeps queries stable for tests and logs.
	for _, col := range []string{"scope", "query_hash", "manga_id", "chapter_url", "source"} {
		v, ok := filters[col]
		if !ok || v == "" {
			continue
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
