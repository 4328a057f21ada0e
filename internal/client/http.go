package client

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// NewBearerHTTPClient returns an HTTP client that attaches token as a bearer
// Authorization header to every request
func NewBearerHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout
	return httpClient
}

// isRetriableStatusCode determines if an HTTP status code should trigger a retry
func isRetriableStatusCode(statusCode int) bool {
	// 5xx errors are retriable (server errors)
	if statusCode >= 500 && statusCode < 600 {
		return true
	}

	// 429 Too Many Requests is retriable
	return statusCode == http.StatusTooManyRequests
}
