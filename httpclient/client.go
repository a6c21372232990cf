package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Client is the net/http Transport.
type Client struct {
	httpClient *http.Client
	config     Config
}

var _ Transport = (*Client)(nil)

// New creates a net/http transport with the given configuration.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost
	transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost

	return &Client{
		// per-request contexts carry the deadline; no client-wide timeout
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
	}, nil
}

// Unwrap returns the underlying *http.Client for advanced use cases.
func (c *Client) Unwrap() *http.Client {
	return c.httpClient
}

// Send executes one request. Cancelling ctx aborts the in-flight call.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.attemptTimeout(req))
	defer cancel()

	url := resolveURL(c.config.BaseURL, req.URL)
	httpReq, err := c.buildRequest(ctx, url, req)
	if err != nil {
		return nil, invalidError("build request", url, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newError("send", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, newError("read body", url, err)
	}
	if int64(len(body)) > c.config.MaxResponseBytes {
		return nil, invalidError("read body", url, fmt.Errorf("response exceeds %d bytes", c.config.MaxResponseBytes))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}, nil
}

// buildRequest constructs an *http.Request from the client config and request.
func (c *Client) buildRequest(ctx context.Context, url string, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range mergeHeaders(c.config.Headers, req.Headers) {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	return httpReq, nil
}

// flattenHeaders converts multi-value headers to single-value.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
