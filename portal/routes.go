package portal

import (
	"net/http"
	"strings"
)

func (p *Portal) initRoutes() {
	if cb, ok := p.Bridge.(interface{ CallbackHandler() http.HandlerFunc }); ok {
		p.RegisterRouteFunc("GET "+RouteLoginCallback, ChainMiddleware(cb.CallbackHandler(), p.APIMiddleware()...))
	}

	// session
	p.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(p.LoginHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(p.LogoutHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteOwnerLogin, ChainMiddleware(p.OwnerLoginHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteOwnerRegister, ChainMiddleware(p.OwnerRegisterHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))

	// dashboard
	p.RegisterRouteFunc("GET "+RouteStatus, ChainMiddleware(p.StatusHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("GET "+RouteCache, ChainMiddleware(p.CacheHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteDashboardOpen, ChainMiddleware(p.DashboardOpenHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteDashboardClose, ChainMiddleware(p.DashboardCloseHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))

	// fleets
	p.RegisterRouteFunc("POST "+RouteFleets, ChainMiddleware(p.CreateFleetHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("PUT "+RouteFleet, ChainMiddleware(p.UpdateFleetHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("DELETE "+RouteFleet, ChainMiddleware(p.DeleteFleetHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteFleetSelect, ChainMiddleware(p.SelectFleetHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("DELETE "+RouteFleetSelection, ChainMiddleware(p.DeselectFleetHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("POST "+RouteFleetVehicles, ChainMiddleware(p.AddVehicleHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("PUT "+RouteVehicle, ChainMiddleware(p.UpdateVehicleHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("PUT "+RouteVehicleStatus, ChainMiddleware(p.UpdateVehicleStatusHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
	p.RegisterRouteFunc("DELETE "+RouteVehicle, ChainMiddleware(p.DeleteVehicleHandler(), p.APIMiddleware(p.LocalOnlyMiddleware)...))
}

func (p *Portal) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	p.routes = append(p.routes, pattern)
	p.mux.HandleFunc(pattern, handler)
}

func (p *Portal) logRoutes() {
	if p.env != "DEV" {
		return
	}
	for _, route := range p.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			p.logRoute(parts[0], parts[1])
		} else {
			p.logRoute("", parts[0])
		}
	}
}

func (p *Portal) logRoute(method, path string) {
	p.logger.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
}
