package identity

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
)

// CallbackHandler serves the redirect URI. It completes the code exchange and
// redirects to the location the login started from.
func (b *OIDCBridge) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// FormValue covers both query params and form_post responses
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		returnTo, err := b.Complete(r.Context(), state, code)
		if errors.Is(err, ErrFlowNotFound) {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if err != nil {
			b.logger.Err(err).Msg("login callback failed")
			http.Error(w, fmt.Sprintf("Login failed: %v", err), http.StatusInternalServerError)
			return
		}

		if returnTo == "" {
			returnTo = "/"
		}
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
	}
}
