package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultExchangeURL is the exchangerate-api v6 endpoint.
const DefaultExchangeURL = "https://v6.exchangerate-api.com/v6"

type exchangeResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// ExchangeClient reads currency conversion rates.
type ExchangeClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

// NewExchangeClient creates a client; an empty baseURL selects DefaultExchangeURL.
func NewExchangeClient(f *Fetcher, baseURL, apiKey string) *ExchangeClient {
	if baseURL == "" {
		baseURL = DefaultExchangeURL
	}
	return &ExchangeClient{fetcher: f, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Rate returns how many units of target one unit of base buys.
func (c *ExchangeClient) Rate(ctx context.Context, base, target string) (float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	target = strings.ToUpper(strings.TrimSpace(target))
	if base == "" || target == "" {
		return 0, &FetchError{Source: "exchange", Err: fmt.Errorf("base and target currency are required")}
	}

	endpoint := c.baseURL + "/" + url.PathEscape(c.apiKey) + "/latest/" + url.PathEscape(base)
	var resp exchangeResponse
	if err := c.fetcher.GetJSON(ctx, "exchange", endpoint, &resp); err != nil {
		return 0, err
	}
	if resp.Result != "" && resp.Result != "success" {
		return 0, &FetchError{Source: "exchange", Err: fmt.Errorf("api error %q", resp.ErrorType)}
	}
	rate, ok := resp.ConversionRates[target]
	if !ok || rate <= 0 {
		return 0, &FetchError{Source: "exchange", Err: fmt.Errorf("%w: no %s rate for %s", ErrNoData, target, base)}
	}
	return rate, nil
}
