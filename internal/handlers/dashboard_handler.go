package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/storeit/dashboard/internal/errors"
	"github.com/storeit/dashboard/internal/matching"
	"github.com/storeit/dashboard/internal/middleware"
	"github.com/storeit/dashboard/internal/models"
	"github.com/storeit/dashboard/internal/services"
)

// DashboardHandler serves the map and table views.
type DashboardHandler struct {
	service services.DashboardService
	now     func() time.Time
}

// NewDashboardHandler creates a new DashboardHandler instance.
func NewDashboardHandler(service services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		now:     time.Now,
	}
}

// RegisterRoutes mounts the dashboard endpoints on an /api/v1 group.
func (h *DashboardHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/map", h.Map)
	v1.POST("/refresh", h.Refresh)

	hosts := v1.Group("/hosts")
	{
		hosts.GET("", h.Hosts)
		hosts.GET("/addresses", h.HostAddresses)
	}

	customers := v1.Group("/customers")
	{
		customers.GET("/actionable", h.ActionableCustomers)
		customers.GET("/pending", h.PendingCustomers)
		customers.GET("/checkins", h.Checkins)
		customers.GET("/selection", h.Selection)
		customers.GET("/:username/match", h.Match)
		customers.GET("/:username/nearby-hosts", h.NearbyHosts)
	}
}

// DateQuery is the evaluation date shared by every view. Empty means today.
type DateQuery struct {
	AsOf time.Time `form:"as_of" time_format:"2006-01-02" time_utc:"1"`
}

// MapRequest represents the query parameters for the map endpoint.
type MapRequest struct {
	DateQuery
	RequirePaid *bool `form:"require_paid"`
}

// CheckinRequest represents the query parameters for the check-in table.
type CheckinRequest struct {
	DateQuery
	Host string `form:"host"`
}

// SelectionRequest represents the query parameters for the selection map.
type SelectionRequest struct {
	DateQuery
	Usernames []string `form:"username" binding:"required,min=1,dive,required"`
}

// NearbyRequest represents the query parameters for the nearby-hosts endpoint.
type NearbyRequest struct {
	DateQuery
	Radius *int `form:"radius" binding:"omitempty,min=1,max=50000"`
}

// MapResponse is the main map: markers, connections and the same data as GeoJSON.
type MapResponse struct {
	GeoJSON     models.FeatureCollection `json:"geojson"`
	AsOf        string                   `json:"as_of"`
	FetchedAt   string                   `json:"fetched_at,omitempty"`
	Hosts       []HostData               `json:"hosts"`
	Customers   []CustomerData           `json:"customers"`
	Connections []ConnectionData         `json:"connections"`
	Stale       bool                     `json:"stale"`
}

// HostsResponse lists available hosts.
type HostsResponse struct {
	Hosts []HostData `json:"hosts"`
	Count int        `json:"count"`
}

// CustomersResponse lists customers with their status labels.
type CustomersResponse struct {
	Customers []CustomerData `json:"customers"`
	Count     int            `json:"count"`
}

// CheckinResponse is the check-in table and its host filter options.
type CheckinResponse struct {
	Rows  []CheckinRowData `json:"rows"`
	Hosts []string         `json:"hosts"`
	Host  string           `json:"host"`
}

// SelectionResponse is the map for the selected customers.
type SelectionResponse struct {
	GeoJSON     models.FeatureCollection `json:"geojson"`
	Customers   []CustomerData           `json:"customers"`
	Hosts       []MatchedHostData        `json:"hosts"`
	Connections []ConnectionData         `json:"connections"`
}

// MatchResponse is a customer and its resolved host, if any.
type MatchResponse struct {
	Host     *MatchedHostData `json:"host"`
	Customer CustomerData     `json:"customer"`
}

// NearbyResponse lists available hosts around a customer, closest first.
type NearbyResponse struct {
	Hosts        []HostWithDistance `json:"hosts"`
	Customer     CustomerData       `json:"customer"`
	Center       models.Location    `json:"center"`
	RadiusMeters int                `json:"radius_meters"`
	Count        int                `json:"count"`
}

// AddressesResponse lists available hosts with their addresses.
type AddressesResponse struct {
	Addresses []HostAddressData `json:"addresses"`
	Count     int               `json:"count"`
}

// bindQuery binds and validates query parameters, writing the error response on failure.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		apierrors.BadRequest(c, "Invalid query parameters", map[string]interface{}{
			"reason": err.Error(),
		})
		return false
	}
	return true
}

// handleServiceError maps service errors to API error responses.
func handleServiceError(c *gin.Context, err error, fallback string) {
	var notFound *services.CustomerNotFoundError
	switch {
	case errors.As(err, &notFound):
		details := map[string]interface{}{"username": notFound.Username}
		if len(notFound.Suggestions) > 0 {
			details["suggestions"] = notFound.Suggestions
		}
		apierrors.NotFoundWithDetails(c, "Customer not found", details)
	case errors.Is(err, services.ErrCustomerNoLocation):
		apierrors.NotFound(c, "Customer has no coordinates")
	case errors.Is(err, services.ErrInvalidRadius):
		apierrors.BadRequest(c, services.ErrInvalidRadius.Error(), nil)
	case errors.Is(err, services.ErrSourceUnavailable):
		apierrors.ServiceUnavailable(c, "Data source is unavailable", err)
	case errors.Is(err, services.ErrGeocodingDisabled):
		apierrors.ServiceUnavailable(c, "Address lookup is not enabled", err)
	default:
		apierrors.InternalServerError(c, fallback, err)
	}
}

// Map handles GET /api/v1/map.
func (h *DashboardHandler) Map(c *gin.Context) {
	var req MapRequest
	if !bindQuery(c, &req) {
		return
	}

	view, err := h.service.MapView(c.Request.Context(), req.AsOf, req.RequirePaid)
	if err != nil {
		handleServiceError(c, err, "Failed to build map")
		return
	}

	h.setSnapshotAge(c, view.FetchedAt)
	c.JSON(http.StatusOK, MapResponse{
		AsOf:        models.FormatDate(&view.AsOf),
		FetchedAt:   formatTimestamp(view.FetchedAt),
		Hosts:       mapHosts(view.Hosts),
		Customers:   mapCustomers(view.Customers),
		Connections: mapConnections(view.Connections),
		GeoJSON:     mapFeatures(view.Hosts, view.Customers, view.Connections),
		Stale:       view.Stale,
	})
}

// Hosts handles GET /api/v1/hosts.
func (h *DashboardHandler) Hosts(c *gin.Context) {
	var req DateQuery
	if !bindQuery(c, &req) {
		return
	}

	hosts, err := h.service.AvailableHosts(c.Request.Context(), req.AsOf)
	if err != nil {
		handleServiceError(c, err, "Failed to list hosts")
		return
	}

	c.JSON(http.StatusOK, HostsResponse{Hosts: mapHosts(hosts), Count: len(hosts)})
}

// HostAddresses handles GET /api/v1/hosts/addresses.
func (h *DashboardHandler) HostAddresses(c *gin.Context) {
	var req DateQuery
	if !bindQuery(c, &req) {
		return
	}

	addresses, err := h.service.HostAddresses(c.Request.Context(), req.AsOf)
	if err != nil {
		handleServiceError(c, err, "Failed to look up host addresses")
		return
	}

	out := make([]HostAddressData, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, HostAddressData{
			Username:   a.Username,
			PostalCode: a.PostalCode,
			Address:    a.Address,
			Found:      a.Found,
		})
	}
	c.JSON(http.StatusOK, AddressesResponse{Addresses: out, Count: len(out)})
}

// ActionableCustomers handles GET /api/v1/customers/actionable.
func (h *DashboardHandler) ActionableCustomers(c *gin.Context) {
	var req MapRequest
	if !bindQuery(c, &req) {
		return
	}

	customers, err := h.service.ActionableCustomers(c.Request.Context(), req.AsOf, req.RequirePaid)
	if err != nil {
		handleServiceError(c, err, "Failed to list customers")
		return
	}

	c.JSON(http.StatusOK, CustomersResponse{Customers: mapCustomers(customers), Count: len(customers)})
}

// PendingCustomers handles GET /api/v1/customers/pending.
func (h *DashboardHandler) PendingCustomers(c *gin.Context) {
	var req DateQuery
	if !bindQuery(c, &req) {
		return
	}

	customers, err := h.service.PendingCustomers(c.Request.Context(), req.AsOf)
	if err != nil {
		handleServiceError(c, err, "Failed to list customers")
		return
	}

	c.JSON(http.StatusOK, CustomersResponse{Customers: mapCustomers(customers), Count: len(customers)})
}

// Checkins handles GET /api/v1/customers/checkins.
func (h *DashboardHandler) Checkins(c *gin.Context) {
	var req CheckinRequest
	if !bindQuery(c, &req) {
		return
	}

	table, err := h.service.CheckinTable(c.Request.Context(), req.AsOf, req.Host)
	if err != nil {
		handleServiceError(c, err, "Failed to build check-in table")
		return
	}

	c.JSON(http.StatusOK, CheckinResponse{
		Rows:  mapCheckinRows(table.Rows),
		Hosts: table.Hosts,
		Host:  table.Host,
	})
}

// Selection handles GET /api/v1/customers/selection.
func (h *DashboardHandler) Selection(c *gin.Context) {
	var req SelectionRequest
	if !bindQuery(c, &req) {
		return
	}

	selection, err := h.service.SelectedCustomers(c.Request.Context(), req.AsOf, req.Usernames)
	if err != nil {
		handleServiceError(c, err, "Failed to build selection")
		return
	}

	geo := mapFeatures(nil, selection.Customers, selection.Connections)
	for _, host := range selection.Hosts {
		geo.Features = append(geo.Features, models.NewFeature(models.PointAt(host.Location), map[string]interface{}{
			"kind":     "host",
			"username": host.Username,
		}))
	}

	c.JSON(http.StatusOK, SelectionResponse{
		Customers:   mapCustomers(selection.Customers),
		Hosts:       mapMatchedHosts(selection.Hosts),
		Connections: mapConnections(selection.Connections),
		GeoJSON:     geo,
	})
}

// Match handles GET /api/v1/customers/:username/match.
func (h *DashboardHandler) Match(c *gin.Context) {
	var req DateQuery
	if !bindQuery(c, &req) {
		return
	}

	match, err := h.service.CustomerMatch(c.Request.Context(), req.AsOf, c.Param("username"))
	if err != nil {
		handleServiceError(c, err, "Failed to look up customer")
		return
	}

	response := MatchResponse{Customer: mapCustomer(match.Customer)}
	if match.Host != nil {
		response.Host = &MatchedHostData{Username: match.Host.Username, Location: match.Host.Location}
	}
	c.JSON(http.StatusOK, response)
}

// NearbyHosts handles GET /api/v1/customers/:username/nearby-hosts.
func (h *DashboardHandler) NearbyHosts(c *gin.Context) {
	var req NearbyRequest
	if !bindQuery(c, &req) {
		return
	}

	radius := matching.DefaultNearbyRadiusMeters
	if req.Radius != nil {
		radius = *req.Radius
	}

	nearby, err := h.service.NearbyHosts(c.Request.Context(), req.AsOf, c.Param("username"), radius)
	if err != nil {
		handleServiceError(c, err, "Failed to find nearby hosts")
		return
	}

	hosts := make([]HostWithDistance, 0, len(nearby.Hosts))
	for _, hd := range nearby.Hosts {
		hosts = append(hosts, HostWithDistance{
			Host:     mapHost(hd.Host),
			Distance: math.Round(hd.Distance*10) / 10,
		})
	}

	c.JSON(http.StatusOK, NearbyResponse{
		Customer:     mapCustomer(nearby.Customer),
		Center:       nearby.Center,
		RadiusMeters: nearby.RadiusMeters,
		Hosts:        hosts,
		Count:        len(hosts),
	})
}

// Refresh handles POST /api/v1/refresh.
func (h *DashboardHandler) Refresh(c *gin.Context) {
	if err := h.service.Refresh(c.Request.Context()); err != nil {
		handleServiceError(c, err, "Failed to refresh data")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Snapshot refresh requested", nil)
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (h *DashboardHandler) setSnapshotAge(c *gin.Context, fetchedAt time.Time) {
	if fetchedAt.IsZero() {
		return
	}
	age := h.now().Sub(fetchedAt)
	if age < 0 {
		age = 0
	}
	c.Header(middleware.SnapshotAgeHeader, strconv.Itoa(int(age.Seconds())))
}
