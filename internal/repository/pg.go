package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/urumi-provisioner/pkg/store"
)

// PostgresRepository is the pgxpool-backed Repository implementation,
// grounded on the repository's hand-written-SQL style (no ORM): every query
// is a plain string with positional placeholders and an explicit Scan.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an already-connected pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, s *store.Store) error {
	const q = `
		INSERT INTO stores (
			id, name, namespace, engine, status, phase,
			db_ready, app_ready, created_at, updated_at, deadline_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, q,
		s.ID, s.Name, s.Namespace, s.Engine, s.Status, s.Phase,
		s.DBReady, s.AppReady, s.CreatedAt, s.UpdatedAt, s.DeadlineAt,
	)
	if err != nil {
		return fmt.Errorf("inserting store record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*store.Store, error) {
	sets := []string{"updated_at = now()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
	}
	if patch.ClearPhase {
		sets = append(sets, "phase = NULL")
	} else if patch.Phase != nil {
		sets = append(sets, "phase = "+arg(*patch.Phase))
	}
	if patch.DBReady != nil {
		sets = append(sets, "db_ready = "+arg(*patch.DBReady))
	}
	if patch.AppReady != nil {
		sets = append(sets, "app_ready = "+arg(*patch.AppReady))
	}
	if patch.URL != nil {
		sets = append(sets, "url = "+arg(*patch.URL))
	}
	if patch.AdminURL != nil {
		sets = append(sets, "admin_url = "+arg(*patch.AdminURL))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.ErrorPhase != nil {
		sets = append(sets, "error_phase = "+arg(*patch.ErrorPhase))
	}
	if patch.ReadyAt != nil {
		sets = append(sets, "ready_at = "+arg(*patch.ReadyAt))
	}
	if patch.DeletedAt != nil {
		sets = append(sets, "deleted_at = "+arg(*patch.DeletedAt))
	}
	if patch.ClearDeadline {
		sets = append(sets, "deadline_at = NULL")
	} else if patch.DeadlineAt != nil {
		sets = append(sets, "deadline_at = "+arg(*patch.DeadlineAt))
	}
	if patch.ProvisioningDurationMs != nil {
		sets = append(sets, "provisioning_duration_ms = "+arg(*patch.ProvisioningDurationMs))
	}

	idPlaceholder := arg(id)
	q := fmt.Sprintf(`
		UPDATE stores SET %s
		WHERE id = %s
		RETURNING %s`,
		joinComma(sets), idPlaceholder, selectColumns)

	row := r.pool.QueryRow(ctx, q, args...)
	s, err := scanStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating store record: %w", err)
	}
	return s, nil
}

const selectColumns = `
	id, name, namespace, engine, status, phase, url, admin_url,
	db_ready, app_ready, error_message, error_phase,
	created_at, updated_at, ready_at, deleted_at, deadline_at, provisioning_duration_ms`

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*store.Store, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM stores WHERE id = $1", id)
	s, err := scanStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding store record: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]*store.Store, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+selectColumns+" FROM stores WHERE status != $1 ORDER BY created_at DESC",
		store.StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("listing store records: %w", err)
	}
	defer rows.Close()

	var out []*store.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning store record: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE stores SET status = $1, deleted_at = now(), updated_at = now() WHERE id = $2",
		store.StatusDeleted, id)
	if err != nil {
		return fmt.Errorf("soft-deleting store record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT count(*) FROM stores WHERE status NOT IN ($1, $2)",
		store.StatusFailed, store.StatusDeleted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active store records: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) FindStaleProvisioning(ctx context.Context, asOf time.Time) ([]*store.Store, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+selectColumns+" FROM stores WHERE status = $1 AND deadline_at IS NOT NULL AND deadline_at < $2",
		store.StatusProvisioning, asOf)
	if err != nil {
		return nil, fmt.Errorf("finding stale provisioning records: %w", err)
	}
	defer rows.Close()

	var out []*store.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning store record: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) HealthPing(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("repository health ping: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*store.Store, error) {
	var s store.Store
	var phase, errorPhase *store.Phase
	err := row.Scan(
		&s.ID, &s.Name, &s.Namespace, &s.Engine, &s.Status, &phase, &s.URL, &s.AdminURL,
		&s.DBReady, &s.AppReady, &s.ErrorMessage, &errorPhase,
		&s.CreatedAt, &s.UpdatedAt, &s.ReadyAt, &s.DeletedAt, &s.DeadlineAt, &s.ProvisioningDurationMs,
	)
	if err != nil {
		return nil, err
	}
	s.Phase = phase
	s.ErrorPhase = errorPhase
	return &s, nil
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
