package http

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of ClientInterface. Tests fill out through
// Run on the expectation.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func (m *MockClient) DoJSON(ctx context.Context, method, url string, in, out any) error {
	args := m.Called(ctx, method, url, in, out)
	return args.Error(0)
}

func (m *MockClient) GetJSON(ctx context.Context, url string, out any) error {
	args := m.Called(ctx, url, out)
	return args.Error(0)
}

func (m *MockClient) PostJSON(ctx context.Context, url string, in, out any) error {
	args := m.Called(ctx, url, in, out)
	return args.Error(0)
}

func (m *MockClient) Close() {
	m.Called()
}
