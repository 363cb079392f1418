// Package webhook posts job failure notifications to an operator-configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/scadforge/scadforge/internal/observability/notify"
)

// Evaluator abstracts JMESPath operations for testability.
type Evaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements Evaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// Config describes a webhook destination. BodyExpr is an optional JMESPath
// expression evaluated against the payload document; when empty the full
// payload is posted as-is.
type Config struct {
	URL       string
	Headers   map[string]string
	BodyExpr  string
	OkStatus  int
	Timeout   time.Duration
	Client    *http.Client
	Evaluator Evaluator
}

// Client delivers render job failure notifications to an HTTP endpoint.
type Client struct {
	url      string
	headers  map[string]string
	bodyExpr string
	okStatus int
	client   *http.Client
	jems     Evaluator
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates the endpoint and filter expression up front so a bad
// configuration fails at startup rather than on the first job failure.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("webhook url is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook url scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("invalid webhook url: missing host")
	}

	jems := cfg.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	if err := jems.Validate(cfg.BodyExpr); err != nil {
		return nil, fmt.Errorf("invalid body JMESPath: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	okStatus := cfg.OkStatus
	if okStatus == 0 {
		okStatus = http.StatusOK
	}

	return &Client{
		url:      endpoint,
		headers:  cfg.Headers,
		bodyExpr: strings.TrimSpace(cfg.BodyExpr),
		okStatus: okStatus,
		client:   hc,
		jems:     jems,
	}, nil
}

// SendJobFailure derives the request body and posts it to the endpoint.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := c.deriveBody(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != c.okStatus {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain webhook response body: %w", err)
	}
	return nil
}

// deriveBody serializes the payload and, when configured, reshapes it with
// the JMESPath expression. The expression sees the payload as a plain JSON
// document so operators can select or restructure fields freely.
func (c *Client) deriveBody(payload notify.JobFailurePayload) ([]byte, error) {
	doc := payloadDocument(payload)
	if c.bodyExpr == "" {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal webhook payload: %w", err)
		}
		return b, nil
	}

	res, err := c.jems.Evaluate(c.bodyExpr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate body JMESPath: %w", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal derived body: %w", err)
	}
	return b, nil
}

func payloadDocument(payload notify.JobFailurePayload) map[string]any {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	doc := map[string]any{
		"job_id":      payload.JobID,
		"error":       payload.Error,
		"error_class": payload.ErrorClass,
		"severity":    payload.Severity,
		"occurred_at": occurredAt.UTC().Format(time.RFC3339),
	}
	if len(payload.Metadata) > 0 {
		meta := make(map[string]any, len(payload.Metadata))
		for k, v := range payload.Metadata {
			meta[k] = v
		}
		doc["metadata"] = meta
	}
	return doc
}
