package portal

// Local agent routes
const (
	RouteLoginCallback = "/login/callback"
	RouteLogin         = "/login/{persona}"
	RouteLogout        = "/logout/{persona}"
	RouteOwnerLogin    = "/owner/login"
	RouteOwnerRegister = "/owner/register"

	RouteStatus         = "/status"
	RouteCache          = "/cache/{kind}"
	RouteDashboardOpen  = "/dashboard/open"
	RouteDashboardClose = "/dashboard/close"

	RouteFleets         = "/fleets"
	RouteFleet          = "/fleets/{id}"
	RouteFleetSelect    = "/fleets/{id}/select"
	RouteFleetSelection = "/fleets/selection"
	RouteFleetVehicles  = "/fleets/{id}/vehicles"
	RouteVehicle        = "/vehicles/{id}"
	RouteVehicleStatus  = "/vehicles/{id}/status"
)
