// Package webhookclient delivers domain events to tenant-configured
// webhook endpoints via Svix, the `webhook_out` queue's handler
// collaborator (spec §4.6). Grounded on
// vidinfra-flexprice/internal/svix/client.go's application-per-tenant +
// Message.Create shape, trimmed to the one call the worker needs.
package webhookclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/meteroid-oss/meteroid-sub006/internal/cache"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
)

// Client is the capability trait the WebhookOut handler depends on.
type Client interface {
	// Deliver sends one event to tenantID's application, keyed by eventID
	// so Svix's own dedup keeps a replayed outbox row benign (spec §8
	// "event_id idempotency keeps duplicate handler invocations benign").
	Deliver(ctx context.Context, tenantID, eventID, eventType string, payload map[string]any) error
}

// SvixClient implements Client against the real Svix API.
type SvixClient struct {
	client  *svix.Svix
	enabled bool
	apps    *cache.TokenCache
}

// New builds a SvixClient. When enabled is false (spec's Webhook.Enabled
// config flag), Deliver is a no-op — matching the teacher's dev/test
// posture of shipping with webhooks switched off by default. apps caches
// each tenant's resolved Svix application id (spec §5's 2-minute/100-entry
// token cache, reused here instead of a second cache type) so a busy
// dispatch loop doesn't re-resolve the same tenant's application on every
// single webhook_out delivery.
func New(baseURL, authToken string, enabled bool, apps *cache.TokenCache) (*SvixClient, error) {
	if !enabled {
		return &SvixClient{enabled: false}, nil
	}
	serverURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("parsing svix base url").Mark(ierr.ErrInitialization)
	}
	client, err := svix.New(authToken, &svix.SvixOptions{ServerUrl: serverURL})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("constructing svix client").Mark(ierr.ErrInitialization)
	}
	return &SvixClient{client: client, enabled: true, apps: apps}, nil
}

func (c *SvixClient) applicationID(tenantID string) string {
	return fmt.Sprintf("tenant_%s", tenantID)
}

// ensureApplication resolves tenantID's Svix application id, consulting
// apps before calling out to Svix. The cache entry's SecretHash field
// holds the resolved application id rather than an actual secret hash —
// this is the one per-tenant lookup the webhook delivery path repeats on
// every dispatch, the same role spec §5's token cache plays for
// credential lookups elsewhere.
func (c *SvixClient) ensureApplication(ctx context.Context, tenantID string) (string, error) {
	if c.apps != nil {
		if entry, ok := c.apps.Get(tenantID); ok {
			return entry.SecretHash, nil
		}
	}

	appID := c.applicationID(tenantID)
	resolved := appID
	if _, err := c.client.Application.Get(ctx, appID); err != nil {
		app, err := c.client.Application.Create(ctx, models.ApplicationIn{
			Name: appID,
			Uid:  &appID,
		}, &svix.ApplicationCreateOptions{})
		if err != nil {
			return "", ierr.WithError(err).WithMessage("creating svix application").Mark(ierr.ErrSystem)
		}
		resolved = app.Id
	}

	if c.apps != nil {
		c.apps.Set(tenantID, cache.TokenEntry{TenantID: tenantID, SecretHash: resolved})
	}
	return resolved, nil
}

func (c *SvixClient) Deliver(ctx context.Context, tenantID, eventID, eventType string, payload map[string]any) error {
	if !c.enabled {
		return nil
	}
	appID, err := c.ensureApplication(ctx, tenantID)
	if err != nil {
		return err
	}

	_, err = c.client.Message.Create(ctx, appID, models.MessageIn{
		EventId:   &eventID,
		EventType: eventType,
		Payload:   payload,
	}, &svix.MessageCreateOptions{})
	if err != nil {
		return ierr.WithError(err).WithMessage("delivering webhook message").Mark(ierr.ErrSystem)
	}
	return nil
}
