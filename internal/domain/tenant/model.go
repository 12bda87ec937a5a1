// Package tenant models the multi-tenancy root entity, spec §3.
package tenant

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// Tenant is the top-level ownership boundary: every other entity in the
// core hangs off a TenantID.
type Tenant struct {
	ID                 string      `db:"id" json:"id"`
	OrganizationID     string      `db:"organization_id" json:"organization_id"`
	Slug               string      `db:"slug" json:"slug"`
	ReportingCurrency  string      `db:"reporting_currency" json:"reporting_currency"`
	AvailableCurrencies []string   `db:"available_currencies" json:"available_currencies"`
	Environment        Environment `db:"environment" json:"environment"`

	types.BaseModel
}

// Repository persists tenants. Archival only — spec §3 "archived but not
// deleted".
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, organizationID, slug string) (*Tenant, error)
	Archive(ctx context.Context, id string) error
}
