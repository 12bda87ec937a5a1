package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type OutboxRepository struct {
	db *postgres.DB
}

func NewOutboxRepository(db *postgres.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = `id, event_type, tenant_id, resource_id, status, payload,
	processing_attempts, processing_started_at, processing_completed_at, error, created_at`

func (r *OutboxRepository) Append(ctx context.Context, row *outbox.Row) error {
	query := `
		INSERT INTO outbox_rows (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		row.ID, row.EventType, row.TenantID, row.ResourceID, row.Status, row.Payload,
		row.ProcessingAttempts, row.ProcessingStartedAt, row.ProcessingCompletedAt, row.Error, row.CreatedAt)
	if err != nil {
		return ierr.WithError(err).WithMessage("appending outbox row").Mark(ierr.ErrSystem)
	}
	return nil
}

// ClaimPending transitions up to limit Pending rows to Processing and
// returns them, spec §4.6 "claims up to N Pending rows, transitions them
// to Processing". Uses SELECT ... FOR UPDATE SKIP LOCKED inside its own
// short transaction so multiple dispatcher replicas never claim the same
// row twice, the same discipline internal/dispatcher assumes.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Row, error) {
	var claimed []*outbox.Row
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		var ids []string
		selectQuery := `
			SELECT id FROM outbox_rows
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`
		if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &ids, selectQuery, types.OutboxStatusPending, limit); err != nil {
			return ierr.WithError(err).WithMessage("selecting pending outbox rows").Mark(ierr.ErrSystem)
		}
		if len(ids) == 0 {
			return nil
		}

		now := time.Now()
		updateQuery, args, err := sqlx.In(`
			UPDATE outbox_rows SET status = ?, processing_started_at = ?, processing_attempts = processing_attempts + 1
			WHERE id IN (?)
			RETURNING `+outboxColumns, types.OutboxStatusProcessing, now, ids)
		if err != nil {
			return ierr.WithError(err).WithMessage("building outbox claim query").Mark(ierr.ErrSystem)
		}
		updateQuery = r.db.Rebind(updateQuery)

		rows, err := r.db.Exec(ctx).QueryxContext(ctx, updateQuery, args...)
		if err != nil {
			return ierr.WithError(err).WithMessage("claiming outbox rows").Mark(ierr.ErrSystem)
		}
		defer rows.Close()

		for rows.Next() {
			var row outbox.Row
			if err := rows.StructScan(&row); err != nil {
				return ierr.WithError(err).WithMessage("scanning claimed outbox row").Mark(ierr.ErrSystem)
			}
			claimed = append(claimed, &row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *OutboxRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE outbox_rows SET status = $1, processing_completed_at = now() WHERE id = $2`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query, types.OutboxStatusCompleted, id)
	if err != nil {
		return ierr.WithError(err).WithMessage("marking outbox row completed").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("outbox row %s not found", id).Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE outbox_rows SET status = $1, error = $2 WHERE id = $3`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query, types.OutboxStatusFailed, errMsg, id)
	if err != nil {
		return ierr.WithError(err).WithMessage("marking outbox row failed").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("outbox row %s not found", id).Mark(ierr.ErrNotFound)
	}
	return nil
}
