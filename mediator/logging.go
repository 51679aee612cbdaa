package mediator

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// Logging tags each request with a request id and logs its outcome.
func Logging(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			requestID := req.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
				req = req.Clone(req.Context())
				req.Header.Set(RequestIDHeader, requestID)
			}

			start := time.Now()
			resp, err := next.RoundTrip(req)
			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Err(err)
			} else if resp.StatusCode >= 500 {
				event = logger.Warn()
			}
			if resp != nil {
				event = event.Int("status", resp.StatusCode)
			}
			event.
				Str("requestId", requestID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Dur("latency", time.Since(start)).
				Msg("api request")
			return resp, err
		})
	}
}
