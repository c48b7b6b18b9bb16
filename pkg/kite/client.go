package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

const (
	kiteVersion     = "3"
	quoteTimeLayout = "2006-01-02 15:04:05"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// Client is a minimal REST client for the quote endpoint.
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

func NewClient(apiKey, accessToken, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	return &Client{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type quoteEnvelope struct {
	Status    string                `json:"status"`
	Data      map[string]quoteEntry `json:"data"`
	ErrorType string                `json:"error_type"`
	Message   string                `json:"message"`
}

type quoteEntry struct {
	InstrumentToken uint32    `json:"instrument_token"`
	Timestamp       quoteTime `json:"timestamp"`
	LastPrice       float64   `json:"last_price"`
	Volume          int64     `json:"volume"`
	NetChange       float64   `json:"net_change"`
	OHLC            OHLC      `json:"ohlc"`
}

type quoteTime struct{ time.Time }

func (t *quoteTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.ParseInLocation(quoteTimeLayout, s, ist)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Quote fetches the current quote for every instrument in one request.
// Instruments missing upstream are simply absent from the result.
func (c *Client) Quote(ctx context.Context, instruments []string) (map[string]models.QuoteSnapshot, error) {
	if c.apiKey == "" || c.accessToken == "" {
		return nil, ErrNoCredentials
	}
	if len(instruments) == 0 {
		return map[string]models.QuoteSnapshot{}, nil
	}

	q := url.Values{}
	for _, i := range instruments {
		q.Add("i", i)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	var env quoteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Status:     env.Status,
			ErrorType:  env.ErrorType,
			Message:    env.Message,
		}
	}

	out := make(map[string]models.QuoteSnapshot, len(env.Data))
	for symbol, e := range env.Data {
		out[symbol] = models.QuoteSnapshot{
			InstrumentToken: e.InstrumentToken,
			LastPrice:       e.LastPrice,
			NetChange:       e.NetChange,
			Volume:          e.Volume,
			OHLC: models.OHLC{
				Open:  e.OHLC.Open,
				High:  e.OHLC.High,
				Low:   e.OHLC.Low,
				Close: e.OHLC.Close,
			},
			Timestamp: e.Timestamp.Time,
		}
	}
	return out, nil
}
