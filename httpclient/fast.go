package httpclient

import (
	"context"
	stderrors "errors"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/valyala/fasthttp"
)

// FastClient is the fasthttp Transport. fasthttp has no context support,
// so the attempt runs in its own goroutine and a cancelled ctx returns
// immediately while the call drains in the background until its timeout.
type FastClient struct {
	httpClient *fasthttp.Client
	config     Config
}

var _ Transport = (*FastClient)(nil)

// NewFast creates a fasthttp transport.
func NewFast(cfg Config) (*FastClient, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FastClient{
		httpClient: &fasthttp.Client{
			MaxConnsPerHost:          cfg.MaxConnsPerHost,
			MaxResponseBodySize:      int(cfg.MaxResponseBytes),
			NoDefaultUserAgentHeader: true,
		},
		config: cfg,
	}, nil
}

type fastResult struct {
	resp *Response
	err  error
}

// Send executes one request.
func (c *FastClient) Send(ctx context.Context, req Request) (*Response, error) {
	url := resolveURL(c.config.BaseURL, req.URL)
	timeout := c.config.attemptTimeout(req)
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("send", url, err)
	}
	u, err := neturl.Parse(url)
	if err != nil {
		return nil, invalidError("build request", url, err)
	}
	if u.Host == "" {
		return nil, invalidError("build request", url, stderrors.New("missing host"))
	}

	done := make(chan fastResult, 1)
	go func() {
		resp, err := c.do(url, req, timeout)
		done <- fastResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, newError("send", url, ctx.Err())
	case r := <-done:
		return r.resp, r.err
	}
}

func (c *FastClient) do(url string, req Request, timeout time.Duration) (*Response, error) {
	fr := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(fr)
	defer fasthttp.ReleaseResponse(fresp)

	method := req.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	fr.SetRequestURI(url)
	fr.Header.SetMethod(method)
	for k, v := range mergeHeaders(c.config.Headers, req.Headers) {
		fr.Header.Set(k, v)
	}
	if len(fr.Header.UserAgent()) == 0 {
		fr.Header.SetUserAgent(c.config.UserAgent)
	}
	if len(req.Body) > 0 {
		fr.SetBody(req.Body)
	}

	if err := c.httpClient.DoTimeout(fr, fresp, timeout); err != nil {
		switch {
		case stderrors.Is(err, fasthttp.ErrBodyTooLarge):
			return nil, invalidError("read body", url, err)
		case stderrors.Is(err, fasthttp.ErrTimeout):
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return nil, newError("send", url, err)
	}

	headers := make(map[string]string)
	fresp.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		if _, seen := headers[key]; !seen {
			headers[key] = string(v)
		}
	})
	return &Response{
		StatusCode: fresp.StatusCode(),
		Headers:    headers,
		// fresp is released on return
		Body: append([]byte(nil), fresp.Body()...),
	}, nil
}
