package types

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lexicographically sortable, globally unique identifier.
// Grounded on flexprice's internal/types.GenerateUUID: ULIDs sort by
// creation time, which keeps outbox/PGMQ rows and invoice line items in
// insertion order without a separate sequence column.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// NewIDWithPrefix prefixes an ID with a short entity tag, e.g. "inv_" or
// "sub_", so IDs are self-describing in logs and error messages.
func NewIDWithPrefix(prefix string) string {
	return prefix + "_" + NewID()
}
