package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestCleanMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" render/jobs ":      "render_jobs",
		"render..completed":  "render.completed",
		"queue  depth":       "queue__depth",
		"render/stl/elapsed": "render_stl_elapsed",
		".render.jobs.":      "render.jobs",
		"   ":                "",
	}

	for input, want := range tests {
		if got := cleanMetricName(input); got != want {
			t.Fatalf("cleanMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestQualify(t *testing.T) {
	t.Parallel()

	client := &Client{prefix: "scadforge"}
	if got := client.qualify("render.jobs.completed"); got != "scadforge.render.jobs.completed" {
		t.Fatalf("qualify = %q", got)
	}
	if got := client.qualify("  "); got != "scadforge" {
		t.Fatalf("qualify of blank name = %q, want bare prefix", got)
	}

	unprefixed := &Client{}
	if got := unprefixed.qualify("render.jobs.failed"); got != "render.jobs.failed" {
		t.Fatalf("qualify without prefix = %q", got)
	}
}

func TestAppendTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		// Intentionally padded key/value to ensure trimming logic works.
		//nolint:gocritic // whitespace is part of the test case
		" service ": " render ",
	}
	local := map[string]string{
		"result": " completed ",
		"":       "ignored",
		"env":    "stage",
	}

	var line strings.Builder
	appendTags(&line, global, local)

	want := "|#env:stage,result:completed,service:render"
	if got := line.String(); got != want {
		t.Fatalf("appendTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestAppendTagsEmpty(t *testing.T) {
	t.Parallel()

	var line strings.Builder
	appendTags(&line, nil, nil)
	if got := line.String(); got != "" {
		t.Fatalf("appendTags(nil, nil) wrote %q, want nothing", got)
	}
}

func TestScrubTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	scrubbed := scrubTags(original)
	if scrubbed == nil {
		t.Fatal("scrubTags returned nil map")
	}

	scrubbed["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("scrubTags did not copy values")
	}

	if _, ok := scrubbed[""]; ok {
		t.Fatal("scrubTags kept empty key")
	}
}

func TestClientEmitsOverUDP(t *testing.T) {
	t.Parallel()

	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    listener.LocalAddr().String(),
		Prefix:     "scadforge",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("render.jobs.completed", 1, map[string]string{"status": "completed"})

	if err := listener.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}

	buf := make([]byte, 512)
	n, _, err := listener.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := "scadforge.render.jobs.completed:1|c|#env:test,status:completed"
	if got := string(buf[:n]); got != want {
		t.Fatalf("emitted line mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	// Verify Close can be called again without error.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
