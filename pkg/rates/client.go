package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Source yields the exchange rate from one currency to another. Implementations
// may fail; the converter above this layer degrades to a fallback rate.
type Source interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Client fetches live rates from an exchangerate.host-style API.
type Client struct {
	http   *resty.Client
	apiKey string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		apiKey: apiKey,
	}
}

type convertResponse struct {
	Success bool `json:"success"`
	Info    struct {
		Quote float64 `json:"quote"`
	} `json:"info"`
	Result float64 `json:"result"`
}

func (c *Client) Rate(ctx context.Context, from, to string) (float64, error) {
	var out convertResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from":       from,
			"to":         to,
			"amount":     "1",
			"access_key": c.apiKey,
		}).
		SetResult(&out).
		Get("/convert")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("rate api: %s", resp.Status())
	}
	if !out.Success || out.Result <= 0 {
		return 0, fmt.Errorf("rate api: no quote for %s/%s", from, to)
	}
	return out.Result, nil
}
