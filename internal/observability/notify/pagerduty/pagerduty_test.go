package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/scadforge/scadforge/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.JobFailurePayload{
		JobID:      "123",
		Error:      "boom",
		ErrorClass: "compile_error",
		Metadata:   map[string]string{"stage": "compile"},
	}
	got := client.buildEvent(payload)

	if got.EventAction != "trigger" {
		t.Fatalf("expected trigger action, got %s", got.EventAction)
	}
	if got.Payload.Severity != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %s", got.Payload.Severity)
	}
	if got.Payload.Source != "scadforge" {
		t.Fatalf("expected default source, got %s", got.Payload.Source)
	}
	if got.Payload.Component != "render-worker" {
		t.Fatalf("expected default component, got %s", got.Payload.Component)
	}
	if !strings.Contains(got.Payload.Summary, "123") || !strings.Contains(got.Payload.Summary, "compile_error") {
		t.Fatalf("unexpected summary: %s", got.Payload.Summary)
	}

	required := []string{"job_id", "error", "error_class", "stage"}
	for _, key := range required {
		if _, exists := got.Payload.CustomDetails[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	if got.DedupKey != "render:123" {
		t.Fatalf("expected dedup key to reference job id, got %s", got.DedupKey)
	}
}

func TestBuildEventMetadataDoesNotOverrideCore(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := client.buildEvent(notify.JobFailurePayload{
		JobID:    "abc",
		Error:    "boom",
		Metadata: map[string]string{"job_id": "spoofed"},
	})

	if got.Payload.CustomDetails["job_id"] != "abc" {
		t.Fatalf("metadata must not override core fields, got %v", got.Payload.CustomDetails["job_id"])
	}
}

func TestBuildEventTimestamp(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	got := client.buildEvent(notify.JobFailurePayload{JobID: "j1", OccurredAt: at})
	if got.Payload.Timestamp != "2024-05-02T10:30:00Z" {
		t.Fatalf("unexpected timestamp: %s", got.Payload.Timestamp)
	}
}
