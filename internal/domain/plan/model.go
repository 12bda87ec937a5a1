// Package plan models the plan / plan-version / price-component hierarchy
// a subscription is instantiated from, spec §3. Grounded on
// vidinfra-flexprice/internal/domain/plan's versioned-plan shape, adapted
// from ent-generated edges to plain foreign keys per DESIGN.md's decision
// to drop entgo.io/ent (no code generation can run in this exercise).
package plan

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// PlanStatus tracks whether a plan is offered to new customers.
type PlanStatus string

const (
	PlanStatusDraft      PlanStatus = "draft"
	PlanStatusActive     PlanStatus = "active"
	PlanStatusArchived   PlanStatus = "archived"
)

// Plan is the commercial product; PlanVersion holds the priced contents.
type Plan struct {
	ID              string     `db:"id" json:"id"`
	ProductFamilyID string     `db:"product_family_id" json:"product_family_id"`
	Code            string     `db:"code" json:"code"`
	Name            string     `db:"name" json:"name"`
	Description     string     `db:"description" json:"description"`
	PlanStatus      PlanStatus `db:"plan_status" json:"plan_status"`

	types.BaseModel
}

// PlanVersion is an immutable, numbered revision of a plan's pricing.
// Once a subscription references a version, that version's price
// components never change (spec §3 "plan versions are immutable once
// subscribed").
type PlanVersion struct {
	ID               string              `db:"id" json:"id"`
	PlanID           string              `db:"plan_id" json:"plan_id"`
	Version          int32               `db:"version" json:"version"`
	Currency         string              `db:"currency" json:"currency"`
	BillingPeriod    types.BillingPeriod `db:"billing_period" json:"billing_period"`
	BillingType      types.BillingType   `db:"billing_type" json:"billing_type"`
	TrialDurationDays *int32             `db:"trial_duration_days" json:"trial_duration_days,omitempty"`
	NetTermsDays     int32               `db:"net_terms_days" json:"net_terms_days"`
	IsDraft          bool                `db:"is_draft" json:"is_draft"`
	PublishedAt      *time.Time          `db:"published_at" json:"published_at,omitempty"`

	types.BaseModel
}

// Repository persists plans and their versions.
type Repository interface {
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*Plan, error)

	CreateVersion(ctx context.Context, v *PlanVersion) error
	GetVersion(ctx context.Context, id string) (*PlanVersion, error)
	// LatestPublishedVersion returns the highest-numbered, non-draft
	// version of a plan — the version new subscriptions attach to.
	LatestPublishedVersion(ctx context.Context, planID string) (*PlanVersion, error)
}
