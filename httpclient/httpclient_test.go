package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/version"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func transports(t *testing.T, cfg Config) map[string]Transport {
	t.Helper()
	std, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fast, err := NewFast(cfg)
	if err != nil {
		t.Fatalf("NewFast: %v", err)
	}
	return map[string]Transport{DriverNetHTTP: std, DriverFastHTTP: fast}
}

func TestSendGET(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected default Accept header, got %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("X-Trace") != "abc" {
			t.Errorf("expected request header, got %q", r.Header.Get("X-Trace"))
		}
		if r.Header.Get("User-Agent") != version.UserAgent() {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"word":"hi"}`)
	})

	cfg := Config{BaseURL: srv.URL, Headers: map[string]string{"Accept": "application/json"}}
	for name, tr := range transports(t, cfg) {
		t.Run(name, func(t *testing.T) {
			resp, err := tr.Send(context.Background(), Request{URL: "/entries/hi", Headers: map[string]string{"X-Trace": "abc"}})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if !resp.IsSuccess() || string(resp.Body) != `{"word":"hi"}` {
				t.Errorf("unexpected response %d %s", resp.StatusCode, resp.Body)
			}
			if resp.Headers["Content-Type"] != "application/json" {
				t.Errorf("expected content type header, got %v", resp.Headers)
			}
		})
	}
}

func TestSendPOSTBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || string(body) != `{"q":"hola"}` {
			t.Errorf("unexpected request %s %s", r.Method, body)
		}
		w.WriteHeader(http.StatusCreated)
	})
	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			resp, err := tr.Send(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{"q":"hola"}`)})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("expected 201, got %d", resp.StatusCode)
			}
		})
	}
}

func TestErrorStatusIsResponse(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			resp, err := tr.Send(context.Background(), Request{URL: srv.URL})
			if err != nil {
				t.Fatalf("status codes must not be transport errors: %v", err)
			}
			if !resp.IsError() || resp.StatusCode != 503 {
				t.Errorf("expected 503, got %d", resp.StatusCode)
			}
		})
	}
}

func TestTimeoutClassifiesAsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	})
	defer close(release)

	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Send(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond})
			if err == nil {
				t.Fatal("expected timeout")
			}
			if !IsTimeout(err) {
				t.Errorf("expected IsTimeout, got %v", err)
			}
			if kind := errors.Normalize("dictionary", err).Kind; kind != errors.KindTimeout {
				t.Errorf("expected TIMEOUT_ERROR, got %s", kind)
			}
		})
	}
}

func TestCancelAbortsSend(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	})
	defer close(release)

	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(30*time.Millisecond, cancel)

			start := time.Now()
			_, err := tr.Send(ctx, Request{URL: srv.URL, Timeout: time.Second})
			if err == nil {
				t.Fatal("expected cancellation error")
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Errorf("cancel did not abort promptly")
			}
			if kind := errors.Normalize("dictionary", err).Kind; kind != errors.KindCancelled {
				t.Errorf("expected CANCELLED, got %s", kind)
			}
		})
	}
}

func TestConnectionRefusedIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Send(context.Background(), Request{URL: url})
			if err == nil {
				t.Fatal("expected connection error")
			}
			if !IsTransport(err) {
				t.Errorf("expected transport error, got %T", err)
			}
			if kind := errors.Normalize("pexels", err).Kind; kind != errors.KindNetwork {
				t.Errorf("expected NETWORK_ERROR, got %s", kind)
			}
		})
	}
}

func TestResponseSizeLimit(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	})
	for name, tr := range transports(t, Config{MaxResponseBytes: 16}) {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Send(context.Background(), Request{URL: srv.URL})
			if err == nil {
				t.Fatal("expected oversized response to fail")
			}
			if !IsInvalid(err) || IsTransport(err) {
				t.Errorf("expected invalid, non-transport error, got %v", err)
			}
			if e := errors.Normalize("pexels", err); e.Kind != errors.KindValidation || e.Retryable {
				t.Errorf("expected non-retryable VALIDATION_ERROR, got %s retryable=%v", e.Kind, e.Retryable)
			}
		})
	}
}

func TestMalformedURLIsNotRetryable(t *testing.T) {
	for name, tr := range transports(t, Config{}) {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Send(context.Background(), Request{URL: "http://[::1"})
			if err == nil {
				t.Fatal("expected malformed URL to fail")
			}
			if !IsInvalid(err) || IsTransport(err) {
				t.Errorf("expected invalid, non-transport error, got %v", err)
			}
			e := errors.Normalize("dictionary", err)
			if e.Kind != errors.KindValidation || e.Retryable {
				t.Errorf("expected non-retryable VALIDATION_ERROR, got %s retryable=%v", e.Kind, e.Retryable)
			}
		})
	}
}

func TestNewTransportSelectsDriver(t *testing.T) {
	tr, err := NewTransport(Config{Driver: DriverFastHTTP})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*FastClient); !ok {
		t.Errorf("expected *FastClient, got %T", tr)
	}
	tr, err = NewTransport(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*Client); !ok {
		t.Errorf("expected *Client, got %T", tr)
	}
	if _, err := NewTransport(Config{Driver: "curl"}); err == nil {
		t.Error("expected unknown driver error")
	}
}

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ct   string
	}{
		{"nil", nil, "", ""},
		{"bytes", []byte("raw"), "raw", ""},
		{"string", "text", "text", "text/plain"},
		{"reader", strings.NewReader("stream"), "stream", ""},
		{"json", map[string]string{"q": "hi"}, `{"q":"hi"}`, "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ct, err := EncodeBody(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want || ct != tt.ct {
				t.Errorf("EncodeBody() = %q, %q; want %q, %q", got, ct, tt.want, tt.ct)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct{ base, url, want string }{
		{"", "https://a.test/x", "https://a.test/x"},
		{"https://a.test/", "/x", "https://a.test/x"},
		{"https://a.test", "x", "https://a.test/x"},
		{"https://a.test", "http://b.test/y", "http://b.test/y"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.base, tt.url); got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.url, got, tt.want)
		}
	}
}
