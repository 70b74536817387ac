package observability

import (
	"context"
	"net/http"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTiming starts a server-timing metric with the given name.
// If the request was not wrapped by ServerTimingMiddleware it returns a no-op metric.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}
	return &ServerTimingMetric{metric: timing.NewMetric(name).Start()}
}

// StartServerTimingWithDesc is StartServerTiming with a description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}
	return &ServerTimingMetric{metric: timing.NewMetric(name).WithDesc(description).Start()}
}

// ServerTimingMiddleware adds the Server-Timing header to every response.
func ServerTimingMiddleware(next http.Handler) http.Handler {
	return servertiming.Middleware(next, nil)
}
