package metrics

import (
	"time"

	obserrors "github.com/scadforge/scadforge/internal/observability/errors"
	"github.com/scadforge/scadforge/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// RenderMetric captures details about a render job lifecycle event for metric emission.
type RenderMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitRenderLifecycle emits standardised render job lifecycle metrics.
func EmitRenderLifecycle(sink statsd.Sink, in RenderMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("render.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("render.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
