package portal

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/jrsteele09/go-fleet-portal/api"
	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/internal/utils"
	"github.com/jrsteele09/go-fleet-portal/realtime"
	"github.com/jrsteele09/go-fleet-portal/session"
	"github.com/jrsteele09/go-fleet-portal/store"
)

const contentTypeJSON = "application/json"

type Status struct {
	Persona       string            `json:"persona"`
	OwnerID       string            `json:"ownerId,omitempty"`
	Authenticated bool              `json:"authenticated"`
	NextRefresh   *time.Time        `json:"nextRefresh,omitempty"`
	Realtime      map[string]string `json:"realtime"`
	FleetPolling  bool              `json:"fleetPolling"`
	SelectedFleet string            `json:"selectedFleet,omitempty"`
	Loading       bool              `json:"loading"`
	Fleets        int               `json:"fleets"`
	Vehicles      int               `json:"vehicles"`
	Telemetry     int               `json:"telemetry"`
}

// Status summarises the session, channel and cache state.
func (p *Portal) Status(r *http.Request) Status {
	persona := p.Sessions.Active()
	st := Status{
		Persona:       persona.String(),
		Authenticated: p.Sessions.Authenticated(r.Context(), persona),
		Realtime: map[string]string{
			string(realtime.TopicFleetEvents):   p.Realtime.State(realtime.TopicFleetEvents).String(),
			string(realtime.TopicVehicleEvents): p.Realtime.State(realtime.TopicVehicleEvents).String(),
		},
		FleetPolling:  p.dashboard.FleetPolling(),
		SelectedFleet: p.fleets.Selected(),
		Loading:       p.Cache.Loading(),
		Fleets:        len(p.Cache.Fleets()),
		Vehicles:      len(p.Cache.Vehicles()),
		Telemetry:     len(p.Cache.Telemetry()),
	}
	if ownerID, err := p.Sessions.OwnerID(); err == nil {
		st.OwnerID = ownerID
	}
	if next, ok := p.Sessions.Scheduler().NextFire(); ok {
		st.NextRefresh = &next
	}
	return st
}

func (p *Portal) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Status(r))
	}
}

func (p *Portal) CacheHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch store.Kind(r.PathValue("kind")) {
		case store.KindFleets:
			writeJSON(w, http.StatusOK, p.Cache.Fleets())
		case store.KindVehicles:
			writeJSON(w, http.StatusOK, p.Cache.Vehicles())
		case store.KindTelemetry:
			writeJSON(w, http.StatusOK, p.Cache.Telemetry())
		case store.KindOwner:
			owner, ok := p.Cache.Owner()
			if !ok {
				writeJSONError(w, "not_found", "no owner cached", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, owner)
		default:
			writeJSONError(w, "not_found", "unknown cache kind", http.StatusNotFound)
		}
	}
}

// LoginHandler starts a redirect sign-in. The identity provider URL is sent
// to the navigator; completion arrives on the callback route.
func (p *Portal) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persona, err := session.ParsePersona(r.PathValue("persona"))
		if err != nil || persona == session.PersonaNone {
			writeJSONError(w, "invalid_request", "unknown persona", http.StatusBadRequest)
			return
		}
		if err := p.Sessions.Login(r.Context(), persona, r.URL.Query().Get("returnTo")); err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "redirecting"})
	}
}

func (p *Portal) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persona, err := session.ParsePersona(r.PathValue("persona"))
		if err != nil || persona == session.PersonaNone {
			writeJSONError(w, "invalid_request", "unknown persona", http.StatusBadRequest)
			return
		}
		if err := p.Sessions.Logout(r.Context(), persona); err != nil {
			p.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// OwnerLoginHandler signs an owner in with email and password.
func (p *Portal) OwnerLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds session.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeJSONError(w, "invalid_request", "malformed credentials", http.StatusBadRequest)
			return
		}
		profile, err := p.Sessions.LoginOwner(r.Context(), creds)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// OwnerRegisterHandler stores the registration and sends the user to the
// identity provider. The owner is created when the callback completes.
func (p *Portal) OwnerRegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg fleet.OwnerRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeJSONError(w, "invalid_request", "malformed registration", http.StatusBadRequest)
			return
		}
		if err := p.Sessions.BeginRegistration(r.Context(), reg); err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "redirecting"})
	}
}

func (p *Portal) DashboardOpenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.dashboard.Open(r.Context()); err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p.Status(r))
	}
}

func (p *Portal) DashboardCloseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.dashboard.Close()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (p *Portal) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		p.logger.Error().Err(err).Msg("request failed")
	}
	writeJSONError(w, code, utils.FirstNonEmpty(api.UserMessage(err), err.Error()), status)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrUnknownPersona), errors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errors.ErrAuthRequired), errors.Is(err, errors.ErrNoCredential),
		errors.Is(err, errors.ErrAuthRejected), errors.Is(err, errors.ErrRefreshFailed),
		errors.Is(err, errors.ErrSessionEnded):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errors.ErrProfileAbsent), errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errors.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusBadGateway, "upstream_error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
