// Package postgres implements every internal/domain/*.Repository interface
// against Postgres via sqlx, grounded on
// bugielektrik-library/internal/repository/postgres's SelectContext/
// GetContext/QueryRowContext idiom (SelectContext for lists, GetContext for
// single rows, QueryRowContext+Scan for INSERT...RETURNING), generalized to
// this module's multi-tenant, advisory-lock-aware internal/postgres.DB.
package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

// jsonCol adapts any JSON-shaped domain field (line items, segmentation
// matrices, header maps, rate tables) to database/sql's Scanner/Valuer
// pair, so it can sit behind a jsonb column without a per-field bespoke
// type. No pack repository needs this (the teacher's ent-generated code
// handles it through codegen, and bugielektrik-library's domain is flat
// enough to avoid it) — see DESIGN.md's stdlib-justification entry.
type jsonCol[T any] struct {
	Val T
}

func (c *jsonCol[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonCol: unsupported scan source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &c.Val)
}

func (c jsonCol[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.Val)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("marshaling jsonb column").Mark(ierr.ErrSystem)
	}
	return b, nil
}
