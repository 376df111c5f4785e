package httpstatus

import (
	"encoding/json"

	"github.com/rno-g/rno-g-acq/internal/metrics"
)

// MetricsHandler returns a Handler that serves a JSON snapshot of the
// given metrics source, for the status-serve thread's /metrics path.
func MetricsHandler(src *metrics.Metrics) Handler {
	return func(req *Request) Response {
		body, err := json.Marshal(src.Snapshot())
		if err != nil {
			return Response{Code: InternalError, Body: []byte(err.Error())}
		}
		return Response{Code: OK, Body: body, ContentType: "application/json"}
	}
}

// Route dispatches to one of several handlers by exact request path,
// falling back to a default handler (typically HealthHandler) when no
// route matches — the status-serve thread's only routing need (design
// §4.8 extended to also expose operational metrics).
func Route(routes map[string]Handler, fallback Handler) Handler {
	return func(req *Request) Response {
		if h, ok := routes[req.Path]; ok {
			return h(req)
		}
		return fallback(req)
	}
}
