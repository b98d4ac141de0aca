// Package audit implements the append-only audit log (spec §4.4): every
// entry is assigned a monotonically increasing id and a wall-clock
// timestamp at record time, and is never mutated or deleted afterward.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one append-only audit record (spec §3).
type Entry struct {
	ID        int64
	Timestamp time.Time
	Action    string
	StoreID   *string
	StoreName *string
	Engine    *string
	SourceIP  *string
	Details   map[string]any
	DurationMs *int64
}

// Filter narrows a Query by storeId and/or action, capped by Limit.
type Filter struct {
	StoreID string
	Action  string
	Limit   int
}

// Log is the append-only audit log surface the orchestrator and admission
// surface write through and the audit handler reads from.
type Log interface {
	// Record appends entry, assigning it an id and timestamp, and returns the
	// stored copy. Concurrent Record calls must be monotonic in id order.
	Record(ctx context.Context, entry Entry) (Entry, error)
	// Query returns entries matching filter, most-recent first.
	Query(ctx context.Context, filter Filter) ([]Entry, error)
	HealthPing(ctx context.Context) error
}

// redactKeys matches detail keys that must never reach the log pipeline or
// the queryable store in cleartext (spec §9).
var redactKeys = regexp.MustCompile(`(?i)(password|secret|token)`)

// Redact returns a copy of details with any key matching password/secret/token
// (anywhere in the key) replaced by a fixed placeholder.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if redactKeys.MatchString(k) {
			out[k] = "[redacted]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

const defaultLimit = 50

// PostgresLog persists entries to the append_only audit_log table — the
// durable backend the design calls for (spec §4.4, §9 open question).
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresLog wraps an already-connected pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

func (l *PostgresLog) Record(ctx context.Context, entry Entry) (Entry, error) {
	entry.Timestamp = time.Now().UTC()
	entry.Details = Redact(entry.Details)

	const q = `
		INSERT INTO audit_log (
			recorded_at, action, store_id, store_name, engine, source_ip, details, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := l.pool.QueryRow(ctx, q,
		entry.Timestamp, entry.Action, entry.StoreID, entry.StoreName, entry.Engine,
		entry.SourceIP, detailsJSON(entry.Details), entry.DurationMs,
	).Scan(&entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("appending audit entry: %w", err)
	}

	l.logger.Info("audit",
		"action", entry.Action, "store_id", entry.StoreID, "store_name", entry.StoreName,
		"engine", entry.Engine, "source_ip", entry.SourceIP, "details", entry.Details,
	)
	return entry, nil
}

func (l *PostgresLog) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	q := `SELECT id, recorded_at, action, store_id, store_name, engine, source_ip, details, duration_ms
		FROM audit_log WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR action = $2)
		ORDER BY id DESC LIMIT $3`

	rows, err := l.pool.Query(ctx, q, filter.StoreID, filter.Action, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *PostgresLog) HealthPing(ctx context.Context) error {
	var one int
	if err := l.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("audit log health ping: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var details map[string]any
	err := row.Scan(&e.ID, &e.Timestamp, &e.Action, &e.StoreID, &e.StoreName, &e.Engine, &e.SourceIP, &details, &e.DurationMs)
	if err != nil {
		return Entry{}, err
	}
	e.Details = details
	return e, nil
}

func detailsJSON(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// MemoryLog is an in-process append-only log, used by tests in place of the
// durable Postgres-backed one and kept as the MVP fallback the design
// describes (spec §4.4: "the current MVP may keep the log in process memory").
type MemoryLog struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
	logger  *slog.Logger
}

// NewMemoryLog builds an empty in-memory log.
func NewMemoryLog(logger *slog.Logger) *MemoryLog {
	return &MemoryLog{logger: logger}
}

func (l *MemoryLog) Record(_ context.Context, entry Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	entry.ID = l.nextID
	entry.Timestamp = time.Now().UTC()
	entry.Details = Redact(entry.Details)
	l.entries = append(l.entries, entry)

	if l.logger != nil {
		l.logger.Info("audit",
			"action", entry.Action, "store_id", entry.StoreID, "store_name", entry.StoreName,
			"engine", entry.Engine, "source_ip", entry.SourceIP, "details", entry.Details,
		)
	}
	return entry, nil
}

func (l *MemoryLog) Query(_ context.Context, filter Filter) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	matches := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter.StoreID != "" && (e.StoreID == nil || *e.StoreID != filter.StoreID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		matches = append(matches, e)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (l *MemoryLog) HealthPing(_ context.Context) error {
	return nil
}
