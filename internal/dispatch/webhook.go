package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// acceptedBody is the only response the generation webhook sends on success
const acceptedBody = "Accepted"

// maxResponseBody caps how much of the webhook response is read
const maxResponseBody = 4 << 10

// WebhookConfig configures the generation webhook client
type WebhookConfig struct {
	URL           string
	SecretKey     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// WebhookClient posts one keyword per call to the external generation webhook.
// Calls are never retried here; a rejected send is reported to the caller.
type WebhookClient struct {
	url       string
	secretKey string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(cfg WebhookConfig, logger *slog.Logger) *WebhookClient {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &WebhookClient{
		url:       cfg.URL,
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

func (c *WebhookClient) form(req domain.DispatchRequest) url.Values {
	form := url.Values{}
	form.Set("keyword", req.Keyword)
	form.Set("id", req.ArticleID)
	form.Set("comment", ".")
	form.Set("featured_image_required", "No")
	form.Set("additional_image_required", "No")
	form.Set("expand_article", "No")
	form.Set("links", ".")
	form.Set("secret_key", c.secretKey)
	return form
}

// Dispatch sends one keyword. It returns ErrNotAccepted when the webhook answers
// with anything other than a 2xx "Accepted".
func (c *WebhookClient) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(c.form(req).Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || strings.TrimSpace(string(body)) != acceptedBody {
		return fmt.Errorf("%w: status %d body %q", domain.ErrNotAccepted, resp.StatusCode, truncate(string(body), 128))
	}

	c.logger.Debug("Keyword dispatched",
		slog.String("batch_id", req.BatchID),
		slog.String("article_id", req.ArticleID),
	)

	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
