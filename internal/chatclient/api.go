package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

// HistoryAPI is the REST collaborator used for history and read receipts.
type HistoryAPI interface {
	FetchHistory(ctx context.Context, peerID int64, limit int) ([]Message, error)
	MarkRead(ctx context.Context, peerID int64) error
}

// APIError is a non-2xx response from the chat REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api: status %d: %s", e.StatusCode, e.Message)
}

// APIClient talks to the chat REST endpoints with the session's token.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	auth       AuthSource
}

func NewAPIClient(baseURL string, httpClient *http.Client, auth AuthSource) (*APIClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chatclient: api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("chatclient: invalid api base url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
	}, nil
}

func (c *APIClient) FetchHistory(ctx context.Context, peerID int64, limit int) ([]Message, error) {
	path := "/messages/" + strconv.FormatInt(peerID, 10)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %d: %w", peerID, err)
	}

	var response struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode history for %d: %w", peerID, err)
	}

	messages := make([]Message, 0, len(response.Messages))
	for _, record := range response.Messages {
		messages = append(messages, messageFromRecord(record))
	}
	return messages, nil
}

func (c *APIClient) MarkRead(ctx context.Context, peerID int64) error {
	path := "/messages/" + strconv.FormatInt(peerID, 10) + "/read"
	if _, err := c.doRequest(ctx, http.MethodPost, path); err != nil {
		return fmt.Errorf("mark %d read: %w", peerID, err)
	}
	return nil
}

func (c *APIClient) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

// readResponse drains resp and turns non-2xx statuses into an *APIError
// carrying the server's "error" field.
func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return nil, apiErr
	}
	return body, nil
}
