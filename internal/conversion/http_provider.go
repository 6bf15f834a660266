package conversion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
)

// HTTPProvider asks a remote conversion endpoint for the rate of one unit.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (p *HTTPProvider) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/conversion/%s/%s/1", p.baseURL, url.PathEscape(from.String()), url.PathEscape(to.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, errors.ErrConversionUnavailable.WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, errors.ErrConversionUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, errors.ErrUnsupportedPair
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, errors.ErrConversionUnavailable.WithCause(
			fmt.Errorf("conversion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, errors.ErrConversionUnavailable.WithCause(fmt.Errorf("decode rate: %w", err))
	}
	if !out.Rate.IsPositive() {
		return decimal.Zero, errors.ErrConversionUnavailable.WithCause(fmt.Errorf("non-positive rate %s", out.Rate))
	}

	return out.Rate, nil
}
