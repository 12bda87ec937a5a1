package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Queue implements pgmq.Queue against a plain pair of Postgres tables
// (pgmq_q_<name>/pgmq_a_<name>) rather than the real pgmq extension, which isn't a Go
// library and can't be wired in without running migrations this exercise
// never executes. The read/claim/archive shape still matches pgmq.rs:
// read() bumps read_ct and pushes vt forward under SKIP LOCKED, archive()
// moves the row into the archive table, delete() just removes it.
type Queue struct {
	db   *postgres.DB
	name types.QueueName
}

func NewQueue(db *postgres.DB, name types.QueueName) *Queue {
	return &Queue{db: db, name: name}
}

func (q *Queue) Name() types.QueueName { return q.name }

// queueTable and archiveTable are safe to build with string concatenation
// because types.QueueName is a closed enum defined in this module, never
// user-supplied input.
func (q *Queue) queueTable() string   { return "pgmq_q_" + string(q.name) }
func (q *Queue) archiveTable() string { return "pgmq_a_" + string(q.name) }

func (q *Queue) Send(ctx context.Context, body []byte, headers map[string]string) (int64, error) {
	var msgID int64
	query := `
		INSERT INTO ` + q.queueTable() + ` (enqueued_at, vt, read_ct, message, headers)
		VALUES (now(), now(), 0, $1, $2)
		RETURNING msg_id`
	err := q.db.Exec(ctx).QueryRowxContext(ctx, query, body, jsonCol[map[string]string]{Val: headers}).Scan(&msgID)
	if err != nil {
		return 0, ierr.WithError(err).WithMessage("sending pgmq message").Mark(ierr.ErrSystem)
	}
	return msgID, nil
}

// Read claims up to qty messages whose visibility window has elapsed,
// extending vt by visibilityTimeout so a crashed worker's in-flight claim
// expires and the message becomes reclaimable again, spec §4.6.
func (q *Queue) Read(ctx context.Context, qty int, visibilityTimeout time.Duration) ([]*pgmq.Message, error) {
	var claimed []*pgmq.Message
	err := q.db.WithTx(ctx, func(ctx context.Context) error {
		var ids []int64
		selectQuery := `
			SELECT msg_id FROM ` + q.queueTable() + `
			WHERE vt <= now()
			ORDER BY msg_id
			LIMIT $1
			FOR UPDATE SKIP LOCKED`
		if err := sqlx.SelectContext(ctx, q.db.Exec(ctx), &ids, selectQuery, qty); err != nil {
			return ierr.WithError(err).WithMessage("selecting pgmq messages").Mark(ierr.ErrSystem)
		}
		if len(ids) == 0 {
			return nil
		}

		updateQuery, args, err := sqlx.In(`
			UPDATE `+q.queueTable()+` SET read_ct = read_ct + 1, vt = ?
			WHERE msg_id IN (?)
			RETURNING msg_id, enqueued_at, read_ct, vt, message, headers`,
			time.Now().Add(visibilityTimeout), ids)
		if err != nil {
			return ierr.WithError(err).WithMessage("building pgmq claim query").Mark(ierr.ErrSystem)
		}
		updateQuery = q.db.Rebind(updateQuery)

		rows, err := q.db.Exec(ctx).QueryxContext(ctx, updateQuery, args...)
		if err != nil {
			return ierr.WithError(err).WithMessage("claiming pgmq messages").Mark(ierr.ErrSystem)
		}
		defer rows.Close()

		for rows.Next() {
			var row struct {
				MsgID      int64                      `db:"msg_id"`
				EnqueuedAt time.Time                  `db:"enqueued_at"`
				ReadCount  int                        `db:"read_ct"`
				VT         time.Time                  `db:"vt"`
				Message    []byte                     `db:"message"`
				Headers    jsonCol[map[string]string] `db:"headers"`
			}
			if err := rows.StructScan(&row); err != nil {
				return ierr.WithError(err).WithMessage("scanning pgmq message").Mark(ierr.ErrSystem)
			}
			claimed = append(claimed, &pgmq.Message{
				MsgID:      row.MsgID,
				EnqueuedAt: row.EnqueuedAt,
				ReadCount:  row.ReadCount,
				VT:         row.VT,
				Body:       row.Message,
				Headers:    row.Headers.Val,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *Queue) Delete(ctx context.Context, msgID int64) error {
	query := `DELETE FROM ` + q.queueTable() + ` WHERE msg_id = $1`
	res, err := q.db.Exec(ctx).ExecContext(ctx, query, msgID)
	if err != nil {
		return ierr.WithError(err).WithMessage("deleting pgmq message").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("pgmq message %d not found", msgID).Mark(ierr.ErrNotFound)
	}
	return nil
}

// Archive moves the row into the archive table in one transaction, used
// both for auditable completions and poison-pill retirement, spec §4.6.
func (q *Queue) Archive(ctx context.Context, msgID int64) error {
	return q.db.WithTx(ctx, func(ctx context.Context) error {
		moveQuery := `
			INSERT INTO ` + q.archiveTable() + ` (msg_id, enqueued_at, archived_at, read_ct, message, headers)
			SELECT msg_id, enqueued_at, now(), read_ct, message, headers
			FROM ` + q.queueTable() + ` WHERE msg_id = $1`
		res, err := q.db.Exec(ctx).ExecContext(ctx, moveQuery, msgID)
		if err != nil {
			return ierr.WithError(err).WithMessage("archiving pgmq message").Mark(ierr.ErrSystem)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ierr.NewErrorf("pgmq message %d not found", msgID).Mark(ierr.ErrNotFound)
		}
		_, err = q.db.Exec(ctx).ExecContext(ctx, `DELETE FROM `+q.queueTable()+` WHERE msg_id = $1`, msgID)
		if err != nil {
			return ierr.WithError(err).WithMessage("removing archived pgmq message from queue").Mark(ierr.ErrSystem)
		}
		return nil
	})
}

func (q *Queue) ListArchived(ctx context.Context, limit int) ([]*pgmq.Message, error) {
	var rows []struct {
		MsgID      int64                      `db:"msg_id"`
		EnqueuedAt time.Time                  `db:"enqueued_at"`
		ReadCount  int                        `db:"read_ct"`
		Message    []byte                     `db:"message"`
		Headers    jsonCol[map[string]string] `db:"headers"`
	}
	query := `SELECT msg_id, enqueued_at, read_ct, message, headers FROM ` + q.archiveTable() + ` ORDER BY archived_at DESC LIMIT $1`
	if err := sqlx.SelectContext(ctx, q.db.Exec(ctx), &rows, query, limit); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing archived pgmq messages").Mark(ierr.ErrSystem)
	}
	out := make([]*pgmq.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, &pgmq.Message{
			MsgID:      row.MsgID,
			EnqueuedAt: row.EnqueuedAt,
			ReadCount:  row.ReadCount,
			Body:       row.Message,
			Headers:    row.Headers.Val,
		})
	}
	return out, nil
}
