package models

import (
	"time"
)

// Location is a WGS84 latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HostRecord is one row of the host table.
// All nullable fields use pointers to distinguish between zero values and missing cells.
type HostRecord struct {
	AvailableStart   *time.Time `json:"availableStartDate,omitempty"`
	AvailableEnd     *time.Time `json:"availableEndDate,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	TransactionCount *int       `json:"transactionCount,omitempty"`
	RevenueProjected *float64   `json:"revenueProjected,omitempty"`
	Username         string     `json:"username"`
	PostalCode       string     `json:"postalCode,omitempty"`
}

// Location returns the host coordinates, or false when either is missing.
func (h HostRecord) Location() (Location, bool) {
	return locationOf(h.Latitude, h.Longitude)
}

// CustomerRecord is one row of the customer table.
type CustomerRecord struct {
	CheckInDate *time.Time `json:"checkInDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	MatchedHost *string    `json:"matchedHost,omitempty"`
	StorageCost *float64   `json:"storageCost,omitempty"`
	Username    string     `json:"username"`
	Stage       Stage      `json:"stage"`
	HasPaid     bool       `json:"hasPaid"`
}

// Location returns the customer coordinates, or false when either is missing.
func (c CustomerRecord) Location() (Location, bool) {
	return locationOf(c.Latitude, c.Longitude)
}

// HasMatch reports whether the customer references a host.
// An empty string counts as no match, same as a missing cell.
func (c CustomerRecord) HasMatch() bool {
	return c.MatchedHost != nil && *c.MatchedHost != ""
}

// MatchedHostName returns the matched host username or "".
func (c CustomerRecord) MatchedHostName() string {
	if c.MatchedHost == nil {
		return ""
	}
	return *c.MatchedHost
}

func locationOf(lat, lng *float64) (Location, bool) {
	if lat == nil || lng == nil {
		return Location{}, false
	}
	return Location{Lat: *lat, Lng: *lng}, true
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the evaluation date for now: the calendar day in now's location, at midnight UTC.
func Today(now time.Time) time.Time {
	return DateOf(now)
}

// FormatDate renders a nullable date as YYYY-MM-DD, or "" when absent.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"
