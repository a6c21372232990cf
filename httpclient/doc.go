// Package httpclient is the network transport the orchestrator sends
// attempts through.
//
// Transport is deliberately narrow: one request in, one response or
// transport failure out. Any status code, including 4xx and 5xx, is a
// response; classification belongs to the caller. Two implementations
// are provided:
//
//   - Client: net/http with a pooled transport
//   - FastClient: valyala/fasthttp
//
// # Basic Usage
//
//	t, err := httpclient.NewTransport(httpclient.Config{Driver: httpclient.DriverNetHTTP})
//	resp, err := t.Send(ctx, httpclient.Request{
//	    Method: http.MethodGet,
//	    URL:    "https://api.dictionaryapi.dev/api/v2/entries/en/hello",
//	})
package httpclient
