package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/checkfox/go_lead_adapter/internal/models"
)

const recordStoreService = "record store"

// itemsQuery selects exactly the fields lead extraction reads
const itemsQuery = `query ($ids: [ID!]) { items (ids: $ids) { id name column_values { id text } } }`

// RecordStoreClient fetches item pages from the upstream record store's
// GraphQL endpoint
type RecordStoreClient struct {
	baseURL    string
	boardID    string
	httpClient *http.Client
}

// NewRecordStoreClient creates a record store client. httpClient is expected
// to carry authentication, see NewBearerHTTPClient.
func NewRecordStoreClient(httpClient *http.Client, baseURL, boardID string) *RecordStoreClient {
	return &RecordStoreClient{
		baseURL:    baseURL,
		boardID:    boardID,
		httpClient: httpClient,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type itemsResponse struct {
	Data   *models.RawItemsPage `json:"data"`
	Errors []graphQLError       `json:"errors"`
}

// FetchItemsPage fetches the page holding a single item. The page's items
// are passed through untouched; an unknown item id yields an empty page.
func (c *RecordStoreClient) FetchItemsPage(ctx context.Context, itemID string) (*models.RawItemsPage, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, models.NewDataFieldNotFoundError("item_id")
	}

	variables := map[string]interface{}{"ids": []string{itemID}}
	if c.boardID != "" {
		variables["board"] = c.boardID
	}

	jsonData, err := json.Marshal(graphQLRequest{Query: itemsQuery, Variables: variables})
	if err != nil {
		return nil, models.NewUpstreamError(recordStoreService, 0, "failed to marshal query", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, models.NewUpstreamError(recordStoreService, 0, "failed to create request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError(recordStoreService, 0, "network error", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewUpstreamError(recordStoreService, resp.StatusCode, "failed to read response body", true, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewUpstreamError(recordStoreService, resp.StatusCode, string(bodyBytes), isRetriableStatusCode(resp.StatusCode), nil)
	}

	var parsed itemsResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, models.NewUpstreamError(recordStoreService, resp.StatusCode, "failed to decode response", false, err)
	}
	if len(parsed.Errors) > 0 {
		messages := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			messages = append(messages, e.Message)
		}
		return nil, models.NewUpstreamError(recordStoreService, resp.StatusCode, strings.Join(messages, "; "), false, nil)
	}
	if parsed.Data == nil {
		return nil, models.NewUpstreamError(recordStoreService, resp.StatusCode, "response has no data", false, nil)
	}

	return parsed.Data, nil
}

// String identifies the client in logs
func (c *RecordStoreClient) String() string {
	return fmt.Sprintf("RecordStoreClient(%s, board=%q)", c.baseURL, c.boardID)
}
