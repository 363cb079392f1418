package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scadforge/scadforge/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#render-alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:      "7f3a2c10",
		Error:      "ERROR: Parser error in line 3",
		ErrorClass: "compile_error",
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Metadata:   map[string]string{"stage": "compile"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#render-alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{
			"Render job failure",
			"7f3a2c10",
			"compile_error",
			"Parser error in line 3",
			"critical",
			"stage: compile",
			"2024-03-01T09:30:00Z",
		},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageDefaults(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID: "job-1",
		Error: "render worker stalled",
	})

	if msg["username"] != "scadforge" {
		t.Fatalf("expected default username, got %v", msg["username"])
	}
	if _, ok := msg["channel"]; ok {
		t.Fatal("expected no channel key when unconfigured")
	}

	text := msg["text"].(string)
	if !strings.Contains(text, "Severity: critical") {
		t.Fatalf("expected default severity in text: %s", text)
	}
}

func TestFormatMessageEscapesError(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID: "job-1",
		Error: "expected <ident> & got EOF",
	})

	text := msg["text"].(string)
	if !strings.Contains(text, "expected &lt;ident&gt; &amp; got EOF") {
		t.Fatalf("expected escaped error text, got: %s", text)
	}
}

func TestSendJobFailurePosts(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		body.Store(string(buf))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID: "job-9",
		Error: "timeout exceeded",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, _ := body.Load().(string)
	if !strings.Contains(sent, "job-9") || !strings.Contains(sent, "timeout exceeded") {
		t.Fatalf("posted body missing payload fields: %s", sent)
	}
}

func TestSendJobFailureRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "no_service", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", Error: "boom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendJobFailureExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", Error: "boom"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "invalid_payload") {
		t.Fatalf("expected response body in error, got: %v", err)
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
