package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kbukum/outbound/cache"
	"github.com/kbukum/outbound/errors"
)

// RequestOptions adjusts a single call. Zero values keep the endpoint
// policy.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Headers override the policy headers by name.
	Headers map[string]string
	// Body is encoded with httpclient.EncodeBody: []byte and io.Reader are
	// sent as is, strings as text and anything else as JSON.
	Body any
	// Timeout overrides the per-attempt timeout.
	Timeout time.Duration
	// MaxRetries overrides the policy retry count when non-nil.
	MaxRetries *int
	// RetryBaseDelay overrides the policy base delay.
	RetryBaseDelay time.Duration
	SkipCache      bool
	SkipRateLimit  bool
}

// Retries returns a pointer for RequestOptions.MaxRetries.
func Retries(n int) *int { return &n }

func (o RequestOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

// Timing brackets a call.
type Timing struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// Response is a successful call.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body"`
	Cached     bool              `json:"cached"`
	// Tier is the cache level that served a cached response.
	Tier       cache.Tier `json:"tier,omitempty"`
	RetryCount int        `json:"retry_count"`
	Timing     Timing     `json:"timing"`
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// GetJSON issues a GET through c and decodes the body into T. A decoding
// failure is reported as an UNKNOWN_ERROR for endpoint.
func GetJSON[T any](ctx context.Context, c *Client, endpoint, url string, opts RequestOptions) (T, error) {
	var out T
	opts.Method = http.MethodGet
	resp, err := c.Request(ctx, endpoint, url, opts)
	if err != nil {
		return out, err
	}
	if err := resp.JSON(&out); err != nil {
		return out, errors.New(errors.KindUnknown, endpoint, "decoding response body").WithCause(err)
	}
	return out, nil
}

// cachedPayload is what both cache tiers store for a response.
type cachedPayload struct {
	StatusCode int               `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body"`
}

func encodePayload(resp *Response) ([]byte, error) {
	return json.Marshal(cachedPayload{StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body})
}

func decodePayload(data []byte) (cachedPayload, error) {
	var p cachedPayload
	err := json.Unmarshal(data, &p)
	return p, err
}
