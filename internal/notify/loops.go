package notify

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

const loopsTransactionalPath = "/api/v1/transactional"

// Loops sends transactional emails through the Loops API
type Loops struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLoops creates a Loops client; baseURL is normally https://app.loops.so
func NewLoops(baseURL, apiKey string, timeout time.Duration) *Loops {
	return &Loops{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type loopsRequest struct {
	TransactionalID string            `json:"transactionalId"`
	Email           string            `json:"email"`
	DataVariables   map[string]string `json:"dataVariables"`
}

func (l *Loops) SendTransactional(ctx context.Context, templateID, email string, vars map[string]string) error {
	if l.apiKey == "" {
		return fmt.Errorf("loops notifier misconfigured: missing api key")
	}

	payload, err := json.Marshal(loopsRequest{
		TransactionalID: templateID,
		Email:           email,
		DataVariables:   vars,
	})
	if err != nil {
		return fmt.Errorf("marshal loops request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+loopsTransactionalPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("loops error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
