package handlers

import (
	"time"

	"github.com/storeit/dashboard/internal/matching"
	"github.com/storeit/dashboard/internal/models"
	"github.com/storeit/dashboard/internal/services"
)

// HostData is a host row in API responses. Dates are YYYY-MM-DD.
type HostData struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	TransactionCount *int     `json:"transaction_count,omitempty"`
	RevenueProjected *float64 `json:"revenue_projected,omitempty"`
	Username         string   `json:"username"`
	AvailableStart   string   `json:"available_start_date,omitempty"`
	AvailableEnd     string   `json:"available_end_date,omitempty"`
	PostalCode       string   `json:"postal_code,omitempty"`
}

// CustomerData is a customer row in API responses.
// Stage is null when the sheet holds no recognizable stage.
type CustomerData struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Stage       *int     `json:"stage"`
	StorageCost *float64 `json:"storage_cost,omitempty"`
	Username    string   `json:"username"`
	Status      string   `json:"status"`
	CheckInDate string   `json:"check_in_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	MatchedHost string   `json:"matched_host,omitempty"`
	HasPaid     bool     `json:"has_paid"`
}

// ConnectionData is a customer-to-host line.
type ConnectionData struct {
	Customer string          `json:"customer"`
	Host     string          `json:"host"`
	From     models.Location `json:"from"`
	To       models.Location `json:"to"`
}

// MatchedHostData is a resolved host marker.
type MatchedHostData struct {
	Username string          `json:"username"`
	Location models.Location `json:"location"`
}

// CheckinRowData is one line of the check-in table.
type CheckinRowData struct {
	StorageCost *float64 `json:"storage_cost"`
	Username    string   `json:"username"`
	CheckInDate string   `json:"check_in_date"`
	EndDate     string   `json:"end_date"`
	MatchedHost string   `json:"matched_host"`
	Status      string   `json:"status"`
	No          int      `json:"no"`
}

// HostWithDistance is a nearby host and its distance from the customer.
type HostWithDistance struct {
	Host     HostData `json:"host"`
	Distance float64  `json:"distance_meters"`
}

// HostAddressData is a host and its looked-up address.
type HostAddressData struct {
	Username   string `json:"username"`
	PostalCode string `json:"postal_code"`
	Address    string `json:"address,omitempty"`
	Found      bool   `json:"found"`
}

func mapHost(h models.HostRecord) HostData {
	return HostData{
		Username:         h.Username,
		Latitude:         h.Latitude,
		Longitude:        h.Longitude,
		AvailableStart:   models.FormatDate(h.AvailableStart),
		AvailableEnd:     models.FormatDate(h.AvailableEnd),
		PostalCode:       h.PostalCode,
		TransactionCount: h.TransactionCount,
		RevenueProjected: h.RevenueProjected,
	}
}

func mapHosts(hosts []models.HostRecord) []HostData {
	out := make([]HostData, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, mapHost(h))
	}
	return out
}

func mapCustomer(c models.CustomerRecord) CustomerData {
	dto := CustomerData{
		Username:    c.Username,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		CheckInDate: models.FormatDate(c.CheckInDate),
		EndDate:     models.FormatDate(c.EndDate),
		Status:      c.Stage.Label(),
		HasPaid:     c.HasPaid,
		MatchedHost: c.MatchedHostName(),
		StorageCost: c.StorageCost,
	}
	if c.Stage != models.StageUnknown {
		stage := int(c.Stage)
		dto.Stage = &stage
	}
	return dto
}

func mapCustomers(customers []models.CustomerRecord) []CustomerData {
	out := make([]CustomerData, 0, len(customers))
	for _, c := range customers {
		out = append(out, mapCustomer(c))
	}
	return out
}

func mapConnections(connections []matching.Connection) []ConnectionData {
	out := make([]ConnectionData, 0, len(connections))
	for _, conn := range connections {
		out = append(out, ConnectionData{
			Customer: conn.Customer,
			Host:     conn.Host,
			From:     conn.CustomerLocation,
			To:       conn.HostLocation,
		})
	}
	return out
}

func mapMatchedHosts(hosts []services.MatchedHost) []MatchedHostData {
	out := make([]MatchedHostData, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, MatchedHostData{Username: h.Username, Location: h.Location})
	}
	return out
}

func mapCheckinRows(rows []matching.CheckinRow) []CheckinRowData {
	out := make([]CheckinRowData, 0, len(rows))
	for _, r := range rows {
		out = append(out, CheckinRowData{
			No:          r.No,
			Username:    r.Username,
			StorageCost: r.StorageCost,
			CheckInDate: models.FormatDate(r.CheckInDate),
			EndDate:     models.FormatDate(r.EndDate),
			MatchedHost: r.MatchedHost,
			Status:      r.Status,
		})
	}
	return out
}

// mapFeatures renders hosts and customers as points and connections as lines.
// Rows without coordinates have no geometry and are left out.
func mapFeatures(hosts []models.HostRecord, customers []models.CustomerRecord, connections []matching.Connection) models.FeatureCollection {
	features := make([]models.Feature, 0, len(hosts)+len(customers)+len(connections))
	for _, h := range hosts {
		loc, ok := h.Location()
		if !ok {
			continue
		}
		features = append(features, models.NewFeature(models.PointAt(loc), map[string]interface{}{
			"kind":                 "host",
			"username":             h.Username,
			"postal_code":          h.PostalCode,
			"available_end_date":   models.FormatDate(h.AvailableEnd),
			"available_start_date": models.FormatDate(h.AvailableStart),
		}))
	}
	for _, c := range customers {
		loc, ok := c.Location()
		if !ok {
			continue
		}
		features = append(features, models.NewFeature(models.PointAt(loc), map[string]interface{}{
			"kind":         "customer",
			"username":     c.Username,
			"status":       c.Stage.Label(),
			"matched_host": c.MatchedHostName(),
		}))
	}
	for _, conn := range connections {
		features = append(features, models.NewFeature(models.LineBetween(conn.CustomerLocation, conn.HostLocation), map[string]interface{}{
			"kind":     "connection",
			"customer": conn.Customer,
			"host":     conn.Host,
		}))
	}
	return models.NewFeatureCollection(features)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
