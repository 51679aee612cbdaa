package portal

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

func (p *Portal) CreateFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fleet.CreateFleetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		f, err := p.fleets.CreateFleet(r.Context(), req)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func (p *Portal) UpdateFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fleet.UpdateFleetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		f, err := p.fleets.UpdateFleet(r.Context(), r.PathValue("id"), req)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func (p *Portal) DeleteFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.fleets.DeleteFleet(r.Context(), r.PathValue("id")); err != nil {
			p.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SelectFleetHandler loads the fleet's vehicles into the cache and joins its
// vehicle event group.
func (p *Portal) SelectFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := p.fleets.Select(r.Context(), r.PathValue("id"))
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func (p *Portal) DeselectFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.fleets.Deselect(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func (p *Portal) AddVehicleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fleet.CreateVehicleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		v, err := p.fleets.AddVehicle(r.Context(), r.PathValue("id"), req)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func (p *Portal) UpdateVehicleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fleet.UpdateVehicleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		v, err := p.fleets.UpdateVehicle(r.Context(), r.PathValue("id"), req)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// UpdateVehicleStatusHandler accepts {"status": "Maintenance"} or the numeric
// wire form.
func (p *Portal) UpdateVehicleStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status fleet.VehicleStatus `json:"status"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		v, err := p.fleets.UpdateVehicleStatus(r.Context(), r.PathValue("id"), body.Status)
		if err != nil {
			p.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (p *Portal) DeleteVehicleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.fleets.DeleteVehicle(r.Context(), r.PathValue("id")); err != nil {
			p.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}
