package postgres

import (
	"database/sql"
	"errors"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

// mapNotFound turns sql.ErrNoRows into the domain-wide not-found sentinel,
// the same translation bugielektrik-library's repositories do against
// pkg/store.ErrorNotFound.
func mapNotFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.NewErrorf("%s not found", what).Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).WithMessage("querying " + what).Mark(ierr.ErrSystem)
}
