package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/models"
)

func newTestMessagingClient(serverURL string) *MessagingClient {
	return NewMessagingClient(NewBearerHTTPClient(context.Background(), "test-token-123", 30*time.Second), serverURL)
}

func TestSendMessage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if contentType := r.Header.Get("Content-Type"); contentType != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", contentType)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token-123" {
			t.Errorf("Expected bearer Authorization header, got %s", auth)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if body["to"] != "15551234567" {
			t.Errorf("Expected to=15551234567, got %v", body["to"])
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC123"}]}`))
	}))
	defer server.Close()

	resp, err := newTestMessagingClient(server.URL).SendMessage(context.Background(), models.JSONB{"to": "15551234567"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", resp.StatusCode)
	}
	if resp.MessageID != "wamid.ABC123" {
		t.Errorf("Expected message id wamid.ABC123, got %q", resp.MessageID)
	}
}

func TestSendMessage_2xxWithoutMessageID(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		body       string
	}{
		{"201 Created", http.StatusCreated, `{"status":"queued"}`},
		{"202 Accepted", http.StatusAccepted, `not json`},
		{"204 No Content", http.StatusNoContent, ``},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			resp, err := newTestMessagingClient(server.URL).SendMessage(context.Background(), models.JSONB{"to": "1"})
			if err != nil {
				t.Fatalf("Expected no error for %d response, got %v", tc.statusCode, err)
			}
			if resp.MessageID != "" {
				t.Errorf("Expected empty message id, got %q", resp.MessageID)
			}
		})
	}
}

func TestSendMessage_ErrorResponses(t *testing.T) {
	testCases := []struct {
		name          string
		statusCode    int
		wantRetriable bool
	}{
		{"400 Bad Request", http.StatusBadRequest, false},
		{"401 Unauthorized", http.StatusUnauthorized, false},
		{"404 Not Found", http.StatusNotFound, false},
		{"429 Too Many Requests", http.StatusTooManyRequests, true},
		{"500 Internal Server Error", http.StatusInternalServerError, true},
		{"503 Service Unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			resp, err := newTestMessagingClient(server.URL).SendMessage(context.Background(), models.JSONB{"to": "1"})
			if err == nil {
				t.Fatalf("Expected error for %d response", tc.statusCode)
			}
			if resp == nil || resp.StatusCode != tc.statusCode {
				t.Errorf("Expected response with status %d, got %+v", tc.statusCode, resp)
			}

			var upstreamErr *models.UpstreamError
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("Expected UpstreamError, got %T", err)
			}
			if upstreamErr.StatusCode != tc.statusCode {
				t.Errorf("Expected status code %d in error, got %d", tc.statusCode, upstreamErr.StatusCode)
			}
			if upstreamErr.IsRetriable() != tc.wantRetriable {
				t.Errorf("Expected retriable=%v for %d", tc.wantRetriable, tc.statusCode)
			}
		})
	}
}

func TestSendMessage_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestMessagingClient(url).SendMessage(context.Background(), models.JSONB{"to": "1"})
	var upstreamErr *models.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if !upstreamErr.IsRetriable() {
		t.Error("Expected network errors to be retriable")
	}
}

func TestSendMessage_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := newTestMessagingClient(server.URL).SendMessage(ctx, models.JSONB{"to": "1"}); err == nil {
		t.Error("Expected error when context deadline passes")
	}
}

func TestIsRetriableStatusCode(t *testing.T) {
	for code, want := range map[int]bool{200: false, 302: false, 400: false, 429: true, 500: true, 599: true, 600: false} {
		if got := isRetriableStatusCode(code); got != want {
			t.Errorf("isRetriableStatusCode(%d) = %v, want %v", code, got, want)
		}
	}
}
