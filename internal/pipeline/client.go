package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FallbackReply is surfaced (and spoken) when the chat backend fails, keeping
// the turn cycle symmetric even on errors.
const FallbackReply = "Sorry, something went wrong. Please try again."

// FallbackFeedback is surfaced when end-of-session feedback cannot be fetched.
const FallbackFeedback = "Unable to generate feedback at this time. Please try again."

// NetworkError means the interview backend could not be reached at all.
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return fmt.Sprintf("pipeline: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError means the backend was reached but failed the request.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("pipeline: service error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to the interview chat backend.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Role      string `json:"role,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
	Feedback string `json:"feedback,omitempty"`
	State    string `json:"state,omitempty"`
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
}

// NewClient constructs a pipeline client for the given backend base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SendMessage delivers one finalized utterance (plus session identity and
// role) and returns the interviewer's reply text.
func (c *Client) SendMessage(ctx context.Context, text, sessionID, role string) (string, error) {
	var out chatResponse
	if err := c.post(ctx, "/chat", chatRequest{Message: text, SessionID: sessionID, Role: role}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// GetFeedback requests end-of-session feedback text for the session.
func (c *Client) GetFeedback(ctx context.Context, sessionID string) (string, error) {
	var out chatResponse
	if err := c.post(ctx, "/feedback", feedbackRequest{SessionID: sessionID}, &out); err != nil {
		return "", err
	}
	return out.Feedback, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &ServiceError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("bad json: %v", err)}
	}
	return nil
}
