// Package fxprovider fetches the daily USD-based conversion table the
// scheduler's refresh-fx task upserts into internal/domain/fxrate, spec §3
// "historical_rates_from_usd ... refreshed periodically". No example repo
// in the retrieval pack talks to an FX-rate API directly, so this is built
// the same way internal/pdfrender is: a small net/http client against one
// external JSON endpoint, following spec §5's connect+read timeout
// discipline (see DESIGN.md's stdlib-justification entry).
package fxprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/shopspring/decimal"
)

// Provider fetches today's USD-relative rate table.
type Provider interface {
	FetchRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// HTTPProvider calls an exchange-rate API that returns a flat
// currency_code -> rate-relative-to-USD JSON object.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func New(endpoint, apiKey string, connectTimeout, readTimeout time.Duration) *HTTPProvider {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: connectTimeout + readTimeout},
	}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (p *HTTPProvider) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("parsing fx provider endpoint").Mark(ierr.ErrValidation)
	}
	q := u.Query()
	q.Set("base", "USD")
	if p.apiKey != "" {
		q.Set("access_key", p.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("building fx rate request").Mark(ierr.ErrSystem)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("calling fx rate provider").Mark(ierr.ErrSystem)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ierr.NewErrorf("fx rate provider returned status %d", resp.StatusCode).Mark(ierr.ErrSystem)
	}

	var out ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ierr.WithError(err).WithMessage("decoding fx rate response").Mark(ierr.ErrSystem)
	}
	out.Rates["USD"] = decimal.NewFromInt(1)
	return out.Rates, nil
}
