package stores

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime converts a timestamp column as returned by the sqlite driver.
// NULL and unparseable values yield the zero time.
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// OpenSQLite opens a sqlite database through squealx and runs the embedded
// migrations. In-memory databases are pinned to one connection so every
// query sees the same data.
func OpenSQLite(dsn string) (*squealx.DB, *sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		sqlDB.SetMaxOpenConns(1)
	}
	db := squealx.NewDb(sqlDB, "sqlite", "guard")
	if err := Migrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return db, sqlDB, nil
}
