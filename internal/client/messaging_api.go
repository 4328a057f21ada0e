package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/checkfox/go_lead_adapter/internal/models"
)

const messagingService = "messaging"

// MessagingClient sends outreach messages to the messaging provider
type MessagingClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMessagingClient creates a messaging client. httpClient is expected to
// carry authentication, see NewBearerHTTPClient.
func NewMessagingClient(httpClient *http.Client, baseURL string) *MessagingClient {
	return &MessagingClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// SendResponse represents the provider's answer to a send request
type SendResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}

type sendResponseBody struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts a message payload to the provider.
// Errors are *models.UpstreamError with Retriable set for network failures,
// 5xx and 429 responses.
func (c *MessagingClient) SendMessage(ctx context.Context, payload models.JSONB) (*SendResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewUpstreamError(messagingService, 0, "failed to marshal payload", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, models.NewUpstreamError(messagingService, 0, "failed to create request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError(messagingService, 0, "network error", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewUpstreamError(messagingService, resp.StatusCode, "failed to read response body", true, err)
	}
	body := string(bodyBytes)

	result := &SendResponse{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, models.NewUpstreamError(messagingService, resp.StatusCode, body, isRetriableStatusCode(resp.StatusCode), nil)
	}

	// A 2xx without a parsable message id is still a successful send
	var parsed sendResponseBody
	if err := json.Unmarshal(bodyBytes, &parsed); err == nil && len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}

	return result, nil
}

// String identifies the client in logs
func (c *MessagingClient) String() string {
	return fmt.Sprintf("MessagingClient(%s)", c.baseURL)
}
