package http

import (
	"context"
	"net/http"
)

// ClientInterface is what callers depend on, so tests can substitute MockClient.
type ClientInterface interface {
	DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error)
	DoJSON(ctx context.Context, method, url string, in, out any) error
	GetJSON(ctx context.Context, url string, out any) error
	PostJSON(ctx context.Context, url string, in, out any) error
	Close()
}
