// Package postgres provides PostgreSQL implementation of faults repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/bissquit/fieldservice-sla/internal/faults"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const faultColumns = `
	id, reference, description, severity, status,
	raised_at, responded_at, arrived_onsite_at, temporarily_restored_at, resolved_at,
	created_at, updated_at`

// milestoneColumns maps milestones to the column holding their actual time.
// Column names are never taken from input.
var milestoneColumns = map[domain.Milestone]string{
	domain.MilestoneRespond:     "responded_at",
	domain.MilestoneOnsite:      "arrived_onsite_at",
	domain.MilestoneTempRestore: "temporarily_restored_at",
}

// Repository implements faults.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanFault(row pgx.Row) (*domain.Fault, error) {
	var f domain.Fault
	err := row.Scan(
		&f.ID,
		&f.Reference,
		&f.Description,
		&f.Severity,
		&f.Status,
		&f.RaisedAt,
		&f.RespondedAt,
		&f.ArrivedOnsiteAt,
		&f.TemporarilyRestoredAt,
		&f.ResolvedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collectFaults(rows pgx.Rows) ([]*domain.Fault, error) {
	defer rows.Close()

	result := make([]*domain.Fault, 0)
	for rows.Next() {
		f, err := scanFault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faults: %w", err)
	}
	return result, nil
}

// CreateFault inserts a fault and fills in its generated fields.
func (r *Repository) CreateFault(ctx context.Context, fault *domain.Fault) error {
	query := `
		INSERT INTO faults (reference, description, severity, status, raised_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		fault.Reference,
		fault.Description,
		fault.Severity,
		fault.Status,
		fault.RaisedAt,
	).Scan(&fault.ID, &fault.CreatedAt, &fault.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert fault: %w", err)
	}
	return nil
}

// GetFault retrieves a fault by ID.
func (r *Repository) GetFault(ctx context.Context, id string) (*domain.Fault, error) {
	query := `SELECT ` + faultColumns + ` FROM faults WHERE id = $1`

	f, err := scanFault(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.ErrFaultNotFound
		}
		return nil, fmt.Errorf("get fault: %w", err)
	}
	return f, nil
}

// ListActiveFaults returns unresolved faults, oldest first.
func (r *Repository) ListActiveFaults(ctx context.Context) ([]*domain.Fault, error) {
	query := `
		SELECT ` + faultColumns + `
		FROM faults
		WHERE status <> 'resolved'
		ORDER BY COALESCE(raised_at, created_at), id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active faults: %w", err)
	}
	return collectFaults(rows)
}

// ListFaultsRaisedBetween returns faults whose start time is in [start, end).
func (r *Repository) ListFaultsRaisedBetween(ctx context.Context, start, end time.Time) ([]*domain.Fault, error) {
	query := `
		SELECT ` + faultColumns + `
		FROM faults
		WHERE COALESCE(raised_at, created_at) >= $1
		  AND COALESCE(raised_at, created_at) < $2
		ORDER BY COALESCE(raised_at, created_at), id
	`
	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query faults in range: %w", err)
	}
	return collectFaults(rows)
}

// SetMilestone stores the milestone time only when none is stored yet, and
// moves an open fault to in_progress. The row is returned as stored, so a
// caller can tell whether its write won.
func (r *Repository) SetMilestone(ctx context.Context, id string, m domain.Milestone, at time.Time) (*domain.Fault, error) {
	column, ok := milestoneColumns[m]
	if !ok {
		return nil, faults.ErrInvalidMilestone
	}

	query := fmt.Sprintf(`
		UPDATE faults
		SET %[1]s = COALESCE(%[1]s, $2),
		    status = CASE WHEN status = 'open' THEN 'in_progress' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %[2]s
	`, column, faultColumns)

	f, err := scanFault(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.ErrFaultNotFound
		}
		return nil, fmt.Errorf("update milestone: %w", err)
	}
	return f, nil
}

// ResolveFault marks an unresolved fault as resolved.
func (r *Repository) ResolveFault(ctx context.Context, id string, at time.Time) (*domain.Fault, error) {
	query := `
		UPDATE faults
		SET status = 'resolved', resolved_at = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'
		RETURNING ` + faultColumns

	f, err := scanFault(r.db.QueryRow(ctx, query, id, at))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve fault: %w", err)
	}

	// Either missing or resolved concurrently.
	if _, getErr := r.GetFault(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, faults.ErrFaultResolved
}

// CreateFaultUpdate inserts a communication log entry.
func (r *Repository) CreateFaultUpdate(ctx context.Context, update *domain.FaultUpdate) error {
	query := `
		INSERT INTO fault_updates (fault_id, update_type, message, sent_by, is_overdue, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING id, created_at
	`
	var createdAt *time.Time
	if !update.CreatedAt.IsZero() {
		createdAt = &update.CreatedAt
	}

	err := r.db.QueryRow(ctx, query,
		update.FaultID,
		update.UpdateType,
		update.Message,
		update.SentBy,
		update.IsOverdue,
		createdAt,
	).Scan(&update.ID, &update.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fault update: %w", err)
	}
	return nil
}

// LatestFaultUpdateAt returns the time of the newest update of a fault.
func (r *Repository) LatestFaultUpdateAt(ctx context.Context, faultID string) (*time.Time, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(created_at) FROM fault_updates WHERE fault_id = $1`,
		faultID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("get latest fault update: %w", err)
	}
	return latest, nil
}

// ListFaultUpdates returns the updates of a fault, newest first.
func (r *Repository) ListFaultUpdates(ctx context.Context, faultID string) ([]*domain.FaultUpdate, error) {
	query := `
		SELECT id, fault_id, update_type, message, sent_by, is_overdue, created_at
		FROM fault_updates
		WHERE fault_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, faultID)
	if err != nil {
		return nil, fmt.Errorf("query fault updates: %w", err)
	}
	defer rows.Close()

	updates := make([]*domain.FaultUpdate, 0)
	for rows.Next() {
		var u domain.FaultUpdate
		if err := rows.Scan(
			&u.ID,
			&u.FaultID,
			&u.UpdateType,
			&u.Message,
			&u.SentBy,
			&u.IsOverdue,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fault update: %w", err)
		}
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fault updates: %w", err)
	}
	return updates, nil
}
