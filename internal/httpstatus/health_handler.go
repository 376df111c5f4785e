package httpstatus

import "github.com/rno-g/rno-g-acq/internal/health"

// HealthHandler returns a Handler that serves the published health record
// as JSON text under a reader lock, regardless of request path or method
// (design §4.8: "the default handler returns the published JSON health
// record under a reader lock on its text").
func HealthHandler(store *health.Store) Handler {
	return func(req *Request) Response {
		return Response{Code: OK, Body: store.Text(), ContentType: "application/json"}
	}
}
