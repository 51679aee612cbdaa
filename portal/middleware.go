package portal

import (
	"net/http"
	"runtime/debug"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (p *Portal) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		p.LoggingMiddleware,
		p.RecoverMiddleware,
	}
	return append(chained, mw...)
}

func (p *Portal) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.env != "DEV" {
			next(w, r)
			return
		}
		p.logRoute(r.Method, r.URL.Path)
		next(w, r)
	}
}

func (p *Portal) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeJSONError(w, "internal_error", "unexpected error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// LocalOnlyMiddleware rejects requests that did not come from loopback.
func (p *Portal) LocalOnlyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			writeJSONError(w, "forbidden", "local requests only", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
