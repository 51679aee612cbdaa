package mediator

import "net/http"

// Middleware decorates a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps base so that mw[0] sees the request first.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	chained := base
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}
