package matching

import (
	"math"
	"sort"
	"time"

	"github.com/storeit/dashboard/internal/models"
)

// AllHosts is the host filter value that disables filtering.
const AllHosts = "All"

// CheckinRow is one line of the customer check-in table.
type CheckinRow struct {
	CheckInDate *time.Time
	EndDate     *time.Time
	StorageCost *float64
	Username    string
	MatchedHost string
	Status      string
	No          int
}

// CheckinRows builds the check-in table: sorted by check-in date (missing dates last),
// numbered from 1 before the host filter is applied, costs rounded to cents.
// An empty host or AllHosts keeps every row.
func CheckinRows(customers []models.CustomerRecord, host string) []CheckinRow {
	sorted := make([]models.CustomerRecord, len(customers))
	copy(sorted, customers)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].CheckInDate, sorted[j].CheckInDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	rows := make([]CheckinRow, 0, len(sorted))
	for i, c := range sorted {
		if host != "" && host != AllHosts && c.MatchedHostName() != host {
			continue
		}
		rows = append(rows, CheckinRow{
			No:          i + 1,
			Username:    c.Username,
			StorageCost: roundCents(c.StorageCost),
			CheckInDate: c.CheckInDate,
			EndDate:     c.EndDate,
			MatchedHost: c.MatchedHostName(),
			Status:      c.Stage.Label(),
		})
	}
	return rows
}

// MatchedHostNames returns the sorted distinct non-empty Matched Host values.
func MatchedHostNames(customers []models.CustomerRecord) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, c := range customers {
		if !c.HasMatch() {
			continue
		}
		if _, ok := seen[*c.MatchedHost]; ok {
			continue
		}
		seen[*c.MatchedHost] = struct{}{}
		names = append(names, *c.MatchedHost)
	}
	sort.Strings(names)
	return names
}

func roundCents(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}
