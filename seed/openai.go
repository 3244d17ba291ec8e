package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"sigforge/core"
)

// ClientConfig configures the OpenAI-compatible completion client.
type ClientConfig struct {
	// Endpoint is the chat-completions URL, e.g.
	// https://api.openai.com/v1/chat/completions.
	Endpoint string
	Model    string
	APIKey   string

	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RequestsPerSecond throttles outgoing requests across all workers.
	RequestsPerSecond float64
}

// Client asks a chat-completion service for labeled example events. The
// same client is shared by every batch worker; the rate limiter serializes
// demand so parallel rule tasks cannot stampede the API.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

const (
	defaultTimeout  = 30 * time.Second
	baseRetryDelay  = 1 * time.Second
	maxRetryDelay   = 30 * time.Second
	retryJitterFrac = 0.2
)

func NewClient(cfg ClientConfig, log *zap.SugaredLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetSeeds requests n positive and n negative example events. Transient
// failures (network, 429, 5xx) are retried with exponential backoff and
// jitter; exhausting the retries returns the last error.
func (c *Client) GetSeeds(ctx context.Context, rule *core.Rule, n int) ([]core.Seed, error) {
	prompt, err := buildPrompt(rule, n)
	if err != nil {
		return nil, &SeedError{Op: "build-prompt", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			c.log.Warnw("retrying seed request",
				"rule_id", rule.ID,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, &SeedError{Op: "retry-wait", Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &SeedError{Op: "rate-limit", Err: err}
		}

		seeds, err := c.requestOnce(ctx, rule, prompt)
		if err == nil {
			return seeds, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) requestOnce(ctx context.Context, rule *core.Rule, prompt string) ([]core.Seed, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You generate realistic structured log events for security detection testing. Respond only in the requested format."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, &SeedError{Op: "marshal-request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &SeedError{Op: "build-request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SeedError{Op: "http", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &SeedError{Op: "read-response", Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &SeedError{
			Op:        "http-status",
			Retryable: true,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload, 200)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &SeedError{
			Op:  "http-status",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload, 200)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &SeedError{Op: "decode-response", Err: err}
	}
	if parsed.Error != nil {
		return nil, &SeedError{Op: "api-error", Err: fmt.Errorf("%s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &SeedError{Op: "decode-response", Err: fmt.Errorf("response has no choices")}
	}

	seeds, err := parseSeedSections(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, &SeedError{Op: "parse-seeds", Err: err}
	}
	c.log.Debugw("seed request succeeded", "rule_id", rule.ID, "seeds", len(seeds))
	return seeds, nil
}

// buildPrompt renders the rule's detection criteria and asks for sectioned
// JSON arrays of positive and negative events.
func buildPrompt(rule *core.Rule, n int) (string, error) {
	criteria, err := yaml.Marshal(rule.Selections)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Detection rule: %s\n", rule.Title)
	fmt.Fprintf(&b, "Condition: %s\n", rule.Condition)
	fmt.Fprintf(&b, "Selection criteria (field constraints):\n%s\n", criteria)
	fmt.Fprintf(&b, "Generate exactly %d POSITIVE and %d NEGATIVE log events as JSON objects.\n", n, n)
	b.WriteString("POSITIVE events must satisfy the condition; NEGATIVE events must not.\n")
	b.WriteString("Use flat or dotted field names exactly as they appear in the criteria.\n\n")
	b.WriteString("Respond in exactly this format:\n")
	b.WriteString("POSITIVE:\n[ { ... }, ... ]\n\n")
	b.WriteString("NEGATIVE:\n[ { ... }, ... ]\n")
	return b.String(), nil
}

// parseSeedSections splits the completion into the POSITIVE and NEGATIVE
// sections and decodes each as a JSON array of events.
func parseSeedSections(content string) ([]core.Seed, error) {
	posIdx := strings.Index(content, "POSITIVE:")
	negIdx := strings.Index(content, "NEGATIVE:")
	if posIdx == -1 || negIdx == -1 || negIdx < posIdx {
		return nil, fmt.Errorf("response missing POSITIVE/NEGATIVE sections")
	}

	positives, err := decodeEventArray(content[posIdx+len("POSITIVE:") : negIdx])
	if err != nil {
		return nil, fmt.Errorf("positive section: %w", err)
	}
	negatives, err := decodeEventArray(content[negIdx+len("NEGATIVE:"):])
	if err != nil {
		return nil, fmt.Errorf("negative section: %w", err)
	}
	if len(positives) == 0 && len(negatives) == 0 {
		return nil, fmt.Errorf("response contained no events")
	}

	seeds := make([]core.Seed, 0, len(positives)+len(negatives))
	for _, ev := range positives {
		seeds = append(seeds, core.Seed{Event: ev, Positive: true})
	}
	for _, ev := range negatives {
		seeds = append(seeds, core.Seed{Event: ev, Positive: false})
	}
	return seeds, nil
}

func decodeEventArray(section string) ([]core.Event, error) {
	section = strings.TrimSpace(section)
	// Tolerate markdown fences around the array.
	section = strings.TrimPrefix(section, "```json")
	section = strings.TrimPrefix(section, "```")
	section = strings.TrimSuffix(section, "```")
	section = strings.TrimSpace(section)

	start := strings.Index(section, "[")
	end := strings.LastIndex(section, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found")
	}

	var events []core.Event
	if err := json.Unmarshal([]byte(section[start:end+1]), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay << uint(attempt-1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(float64(delay)*retryJitterFrac) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
