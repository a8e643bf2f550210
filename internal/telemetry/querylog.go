package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// LatencyBucket names a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >500ms
)

// LatencyToBucket maps a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// maxZeroResults bounds the zero_result_queries table.
const maxZeroResults = 100

// QueryEvent is one evaluated search.
type QueryEvent struct {
	Kind      string
	Query     string
	Rows      int
	Latency   time.Duration
	Timestamp time.Time
}

// QueryLog persists aggregated search statistics in SQLite.
type QueryLog struct {
	db *sql.DB
}

// NewQueryLog wraps db. The schema must exist (see InitSchema).
func NewQueryLog(db *sql.DB) (*QueryLog, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &QueryLog{db: db}, nil
}

// InitSchema creates the query log tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_kind_stats (
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		rows INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind)
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- circular buffer, newest maxZeroResults rows kept
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create query log schema: %w", err)
	}
	return nil
}

// Record stores one event in a single transaction.
func (l *QueryLog) Record(ev QueryEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	date := ev.Timestamp.UTC().Format("2006-01-02")

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO query_kind_stats (date, kind, count, rows)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(date, kind) DO UPDATE SET
			count = count + 1,
			rows = rows + excluded.rows
	`, date, ev.Kind, ev.Rows); err != nil {
		return fmt.Errorf("upsert kind count: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, 1)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + 1
	`, date, string(LatencyToBucket(ev.Latency))); err != nil {
		return fmt.Errorf("upsert latency count: %w", err)
	}

	if ev.Rows == 0 {
		if _, err := tx.Exec(`
			INSERT INTO zero_result_queries (kind, query, timestamp)
			VALUES (?, ?, ?)
		`, ev.Kind, ev.Query, ev.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
		if _, err := tx.Exec(`
			DELETE FROM zero_result_queries
			WHERE id NOT IN (
				SELECT id FROM zero_result_queries
				ORDER BY id DESC
				LIMIT ?
			)
		`, maxZeroResults); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// KindStat aggregates evaluations of one query kind.
type KindStat struct {
	Kind  string
	Count int64
	Rows  int64
}

// KindCounts returns per-kind totals for the inclusive date range (YYYY-MM-DD).
func (l *QueryLog) KindCounts(from, to string) ([]KindStat, error) {
	rows, err := l.db.Query(`
		SELECT kind, SUM(count), SUM(rows)
		FROM query_kind_stats
		WHERE date >= ? AND date <= ?
		GROUP BY kind
		ORDER BY kind
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	defer rows.Close()

	var stats []KindStat
	for rows.Next() {
		var s KindStat
		if err := rows.Scan(&s.Kind, &s.Count, &s.Rows); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LatencyCounts returns the latency distribution for a date range.
func (l *QueryLog) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := l.db.Query(`
		SELECT bucket, SUM(count)
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = count
	}
	return counts, rows.Err()
}

// ZeroResultQueries returns the most recent queries that matched nothing, newest first.
func (l *QueryLog) ZeroResultQueries(limit int) ([]string, error) {
	rows, err := l.db.Query(`
		SELECT query
		FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}
