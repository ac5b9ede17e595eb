package matching

import (
	"github.com/storeit/dashboard/internal/models"
)

// HostIndex maps a host username to its coordinates. It is the join target for Matched Host.
type HostIndex map[string]models.Location

// BuildHostCoordinateIndex indexes hosts by username, first occurrence wins.
// Rows without both coordinates cannot anchor a connection and are skipped before deduplication.
func BuildHostCoordinateIndex(hosts []models.HostRecord) HostIndex {
	index := make(HostIndex, len(hosts))
	for _, h := range hosts {
		loc, ok := h.Location()
		if !ok {
			continue
		}
		if _, seen := index[h.Username]; seen {
			continue
		}
		index[h.Username] = loc
	}
	return index
}

// UniqueHosts drops repeated usernames, keeping the first row for each.
func UniqueHosts(hosts []models.HostRecord) []models.HostRecord {
	seen := make(map[string]struct{}, len(hosts))
	out := make([]models.HostRecord, 0, len(hosts))
	for _, h := range hosts {
		if _, ok := seen[h.Username]; ok {
			continue
		}
		seen[h.Username] = struct{}{}
		out = append(out, h)
	}
	return out
}

// ResolveMatch returns the matched host's location when the reference is non-empty and indexed.
// A dangling reference is not an error: it simply resolves to nothing.
func ResolveMatch(customer models.CustomerRecord, index HostIndex) (models.Location, bool) {
	if !customer.HasMatch() {
		return models.Location{}, false
	}
	loc, ok := index[*customer.MatchedHost]
	return loc, ok
}

// Connection is a drawable line between a customer and its matched host.
type Connection struct {
	Customer         string
	Host             string
	CustomerLocation models.Location
	HostLocation     models.Location
}

// Connections returns one connection per customer whose match resolves and who has coordinates.
func Connections(customers []models.CustomerRecord, index HostIndex) []Connection {
	out := make([]Connection, 0)
	for _, c := range customers {
		from, ok := c.Location()
		if !ok {
			continue
		}
		to, ok := ResolveMatch(c, index)
		if !ok {
			continue
		}
		out = append(out, Connection{
			Customer:         c.Username,
			Host:             *c.MatchedHost,
			CustomerLocation: from,
			HostLocation:     to,
		})
	}
	return out
}
