package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
)

// RestClient implements Gateway against the quiz service's REST API. It
// authenticates with a bearer token and decodes the service's JSON bodies.
type RestClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRestClient builds a client for the given service base URL, for example
// "http://localhost:8080/api/v1".
func NewRestClient(baseURL, token string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *RestClient) ResolveAttempt(ctx context.Context, quizID uint) (*Attempt, error) {
	var attempt Attempt
	path := fmt.Sprintf("/quizzes/%d/attempts", quizID)
	if err := c.do(ctx, http.MethodPost, path, nil, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (c *RestClient) SaveAnswer(ctx context.Context, attemptID, questionID uint, selectedOptionID *uint) error {
	body := SavedAnswer{QuestionID: questionID, SelectedOptionID: selectedOptionID}
	path := fmt.Sprintf("/attempts/%d/answers", attemptID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *RestClient) Submit(ctx context.Context, attemptID uint, answers []SubmittedAnswer) (*Result, error) {
	var result Result
	body := map[string]any{"answers": answers}
	path := fmt.Sprintf("/attempts/%d/submit", attemptID)
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RestClient) Result(ctx context.Context, attemptID uint) (*Result, error) {
	var result Result
	path := fmt.Sprintf("/attempts/%d/result", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RestClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
