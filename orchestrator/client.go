package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/outbound/cache"
	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/httpclient"
	"github.com/kbukum/outbound/logger"
	"github.com/kbukum/outbound/monitoring"
	"github.com/kbukum/outbound/observability"
	"github.com/kbukum/outbound/policy"
	"github.com/kbukum/outbound/resilience"
)

// Client is the resilient request orchestrator.
type Client struct {
	cfg         Config
	log         *logger.Logger
	transport   httpclient.Transport
	policies    *policy.Registry
	limiter     *resilience.RateLimiter
	breakers    *resilience.CircuitBreakerSet
	bulkheads   map[string]*resilience.Bulkhead
	cache       *cache.TwoTier
	monitor     *monitoring.Engine
	instruments *observability.Instruments
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// New builds a Client. When a Store is given, its entries are indexed
// before New returns, so ctx bounds that initial scan.
func New(ctx context.Context, cfg Config, transport httpclient.Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("orchestrator: transport is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: time.Now, sleep: resilience.SleepContext}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}

	registry, err := policy.NewRegistry(cfg.policies())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if len(cfg.Monitoring.Endpoints) == 0 {
		cfg.Monitoring.Endpoints = registry.Names()
	}

	c := &Client{
		cfg:         cfg,
		log:         o.log.WithComponent("orchestrator"),
		transport:   transport,
		policies:    registry,
		bulkheads:   make(map[string]*resilience.Bulkhead),
		instruments: o.instruments,
		now:         o.clock,
		sleep:       o.sleep,
	}

	c.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Clock: o.clock,
		OnLimit: func(key string) {
			c.log.Debug("rate limit reached", logger.Fields(logger.FieldEndpoint, key))
		},
	})

	breakerCfg := cfg.CircuitBreaker
	breakerCfg.Clock = o.clock
	breakerCfg.OnStateChange = c.onBreakerChange
	c.breakers = resilience.NewCircuitBreakerSet(breakerCfg)

	for _, name := range registry.Names() {
		p, _ := registry.Lookup(name)
		if p.MaxConcurrent > 0 {
			c.bulkheads[name] = resilience.NewBulkhead(resilience.BulkheadConfig{
				Name:          name,
				MaxConcurrent: p.MaxConcurrent,
				OnReject: func(key string) {
					c.log.Debug("concurrency limit reached", logger.Fields(logger.FieldEndpoint, key))
				},
			})
		}
	}

	var durable *cache.Durable
	if o.store != nil {
		durable, err = cache.NewDurable(ctx, o.store, cfg.Cache.Durable, o.log, cache.WithClock(o.clock))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}
	c.cache = cache.NewTwoTier(cache.NewMemory(cfg.Cache.MemoryTTL, o.clock), durable, o.log)
	c.cache.OnLookup(func(tier cache.Tier, hit bool) {
		c.instruments.RecordCacheLookup(context.Background(), string(tier), hit)
	})

	monOpts := []monitoring.Option{monitoring.WithClock(o.clock)}
	if o.sink != nil {
		monOpts = append(monOpts, monitoring.WithSink(o.sink))
	}
	if o.notifier != nil {
		monOpts = append(monOpts, monitoring.WithNotifier(o.notifier))
	}
	c.monitor, err = monitoring.New(cfg.Monitoring, o.log, monOpts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return c, nil
}

func (c *Client) onBreakerChange(name string, from, to resilience.State) {
	c.log.Info("circuit breaker state changed", logger.Fields(
		logger.FieldEndpoint, name,
		"from", from.String(),
		logger.FieldState, to.String(),
	))
	c.instruments.RecordTransition(context.Background(), name, from.String(), to.String())
}

// outcome is everything Request learns about one call.
type outcome struct {
	resp       *Response
	err        *errors.Error
	statusCode int
	retries    int
	tier       cache.Tier
}

// Request calls endpoint at url. The returned error is always an
// *errors.Error; a nil error means resp is non-nil.
func (c *Client) Request(ctx context.Context, endpoint, url string, opts RequestOptions) (*Response, error) {
	method := opts.method()
	ctx, span := observability.StartRequest(ctx, c.instruments, endpoint, method)
	start := c.now()

	out := c.run(ctx, endpoint, url, method, opts)
	end := c.now()

	c.record(ctx, endpoint, method, url, start, end, out)

	result := observability.RequestResult{
		StatusCode: out.statusCode,
		Cached:     out.tier != cache.TierNone,
		CacheTier:  string(out.tier),
		RetryCount: out.retries,
	}
	if out.err != nil {
		result.ErrorKind = string(out.err.Kind)
		result.Err = out.err
	}
	span.End(ctx, result)

	if out.err != nil {
		return nil, out.err
	}
	out.resp.Timing = Timing{Start: start, End: end, Duration: end.Sub(start)}
	return out.resp, nil
}

func (c *Client) run(ctx context.Context, endpoint, url, method string, opts RequestOptions) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic during request", logger.Fields(logger.FieldEndpoint, endpoint, "panic", r))
			out = outcome{err: errors.FromPanic(endpoint, r)}
		}
	}()

	p, err := c.policies.Lookup(endpoint)
	if err != nil {
		return outcome{err: errors.Normalize(endpoint, err)}
	}

	body, contentType, err := httpclient.EncodeBody(opts.Body)
	if err != nil {
		return outcome{err: errors.New(errors.KindValidation, endpoint, "encoding request body").WithCause(err)}
	}
	headers := p.MergeHeaders(opts.Headers)
	if contentType != "" {
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = contentType
		}
	}

	key := cache.Key(method, url, body)
	if !opts.SkipCache {
		if resp, tier, ok := c.lookup(ctx, endpoint, key); ok {
			return outcome{resp: resp, statusCode: resp.StatusCode, tier: tier}
		}
	}

	if !opts.SkipRateLimit && !c.limiter.TryAcquire(endpoint, p.RateLimit) {
		return outcome{err: errors.RateLimited(endpoint)}
	}

	if b := c.bulkheads[endpoint]; b != nil {
		if !b.TryAcquire() {
			return outcome{err: errors.New(errors.KindRateLimited, endpoint,
				fmt.Sprintf("more than %d concurrent requests", b.MaxConcurrent()))}
		}
		defer b.Release()
	}

	breaker := c.breakers.Get(endpoint)
	if err := breaker.Allow(); err != nil {
		return outcome{err: errors.CircuitOpen(endpoint).WithCause(err)}
	}

	req := httpclient.Request{Method: method, URL: url, Headers: headers, Body: body}
	resp, retries, callErr := c.execute(ctx, endpoint, p, req, opts)
	if callErr != nil {
		// requests that never left the process say nothing about the endpoint
		if callErr.Kind != errors.KindCancelled && !httpclient.IsInvalid(callErr) {
			breaker.RecordFailure()
		}
		return outcome{err: callErr, statusCode: callErr.StatusCode, retries: retries}
	}
	breaker.RecordSuccess()

	out = outcome{
		resp: &Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
			RetryCount: retries,
		},
		statusCode: resp.StatusCode,
		retries:    retries,
	}
	// only full 200 responses are cacheable
	if !opts.SkipCache && resp.StatusCode == http.StatusOK {
		c.store(ctx, endpoint, key, p, out.resp)
	}
	return out
}

// lookup serves a cached response. Undecodable entries are dropped and
// reported as a miss.
func (c *Client) lookup(ctx context.Context, endpoint, key string) (*Response, cache.Tier, bool) {
	entry, tier, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, cache.TierNone, false
	}
	payload, err := decodePayload(entry.Value)
	if err != nil {
		c.log.WithError(err).Warn("dropping undecodable cache entry", logger.Fields(logger.FieldEndpoint, endpoint))
		_ = c.cache.Delete(ctx, key)
		return nil, cache.TierNone, false
	}
	c.log.Debug("cache hit", logger.Fields(logger.FieldEndpoint, endpoint, logger.FieldCacheTier, string(tier)))
	return &Response{
		StatusCode: payload.StatusCode,
		Headers:    payload.Headers,
		Body:       payload.Body,
		Cached:     true,
		Tier:       tier,
	}, tier, true
}

func (c *Client) store(ctx context.Context, endpoint, key string, p policy.EndpointPolicy, resp *Response) {
	data, err := encodePayload(resp)
	if err != nil {
		c.log.WithError(err).Warn("encoding cache entry failed", logger.Fields(logger.FieldEndpoint, endpoint))
		return
	}
	c.cache.Set(context.WithoutCancel(ctx), key, data, endpoint, p.CacheTTL, c.cfg.Cache.DurableWriteTTL)
}

// execute runs the retry loop. It returns the number of retries made
// after the first attempt.
func (c *Client) execute(ctx context.Context, endpoint string, p policy.EndpointPolicy, req httpclient.Request, opts RequestOptions) (*httpclient.Response, int, *errors.Error) {
	maxRetries := p.MaxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		maxRetries = *opts.MaxRetries
	}
	baseDelay := p.RetryBaseDelay
	if opts.RetryBaseDelay > 0 {
		baseDelay = opts.RetryBaseDelay
	}
	timeout := p.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	req.Timeout = timeout

	attempts := 0
	resp, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    maxRetries + 1,
		InitialBackoff: baseDelay,
		BackoffFactor:  p.BackoffMultiplier,
		RetryIf:        errors.IsRetryable,
		Sleep:          c.sleep,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.log.Debug("retrying request", logger.Fields(
				logger.FieldEndpoint, endpoint,
				logger.FieldAttempt, attempt,
				logger.FieldErrorKind, string(errors.KindOf(err)),
				"backoff_ms", backoff.Milliseconds(),
			))
			c.instruments.RecordRetry(ctx, endpoint, attempt)
		},
	}, func() (*httpclient.Response, error) {
		attempts++
		return c.attempt(ctx, endpoint, req, timeout)
	})

	retries := max(attempts-1, 0)
	if err != nil {
		return nil, retries, c.classify(ctx, endpoint, err, timeout)
	}
	return resp, retries, nil
}

// attempt sends one request bounded by timeout. The transport runs in its
// own goroutine so a transport that ignores ctx cannot hold the call past
// the deadline.
func (c *Client) attempt(ctx context.Context, endpoint string, req httpclient.Request, timeout time.Duration) (*httpclient.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *httpclient.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: errors.FromPanic(endpoint, r)}
			}
		}()
		resp, err := c.transport.Send(actx, req)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-actx.Done():
		res = result{err: actx.Err()}
	}

	if res.err != nil {
		return nil, c.classify(ctx, endpoint, res.err, timeout)
	}
	if res.resp == nil {
		return nil, errors.New(errors.KindUnknown, endpoint, "transport returned no response")
	}
	if !errors.IsSuccessStatus(res.resp.StatusCode) {
		return nil, errors.FromStatus(endpoint, res.resp.StatusCode, http.StatusText(res.resp.StatusCode))
	}
	return res.resp, nil
}

// classify maps a failure to the taxonomy. A done caller context always
// wins: the call was cancelled, whatever the transport reported.
func (c *Client) classify(ctx context.Context, endpoint string, err error, timeout time.Duration) *errors.Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if e, ok := errors.As(err); ok && e.Kind == errors.KindCancelled {
			return e
		}
		return errors.Cancelled(endpoint, ctxErr)
	}
	if e, ok := errors.As(err); ok {
		return e
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(endpoint, timeout).WithCause(err)
	}
	e := errors.Normalize(endpoint, err)
	if e.Kind == errors.KindTimeout {
		return errors.Timeout(endpoint, timeout).WithCause(err)
	}
	return e
}

// record hands the single monitoring record of a call to the engine and
// logs failures.
func (c *Client) record(ctx context.Context, endpoint, method, url string, start, end time.Time, out outcome) {
	rec := monitoring.Record{
		Endpoint:   endpoint,
		Method:     method,
		URL:        url,
		Timestamp:  start,
		Duration:   end.Sub(start),
		StatusCode: out.statusCode,
		Success:    out.err == nil,
		Cached:     out.tier != cache.TierNone,
		RetryCount: out.retries,
	}
	if out.err != nil {
		rec.ErrorKind = out.err.Kind
	}
	c.monitor.RecordCall(context.WithoutCancel(ctx), rec)

	if out.err != nil && c.cfg.LogErrors && c.monitor.Enabled() {
		fields := logger.EndpointFields(endpoint, method, url)
		fields[logger.FieldErrorKind] = string(out.err.Kind)
		fields[logger.FieldAttempt] = out.retries + 1
		if out.statusCode != 0 {
			fields[logger.FieldStatusCode] = out.statusCode
		}
		c.log.WithError(out.err).Warn("request failed", fields)
	}
}
