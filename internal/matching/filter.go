// Package matching holds the host/customer filter and join rules behind the map dashboard.
// Every function is pure: inputs are never mutated and output order follows input order
// unless a function says otherwise.
package matching

import (
	"time"

	"github.com/storeit/dashboard/internal/models"
)

// Stage thresholds used when no policy overrides them.
const (
	DefaultActionableMinStage = models.StageTransactionSucceeded
)

// DefaultPendingStages are the stages where a customer still waits on the host or on payment.
var DefaultPendingStages = []models.Stage{
	models.StageAwaitingHostAcceptance,
	models.StageAwaitingCustomerTransaction,
}

// FilterAvailableHosts keeps hosts whose availability ends on or after asOf and that have both coordinates.
// A missing end date never passes.
func FilterAvailableHosts(hosts []models.HostRecord, asOf time.Time) []models.HostRecord {
	asOf = models.DateOf(asOf)
	out := make([]models.HostRecord, 0, len(hosts))
	for _, h := range hosts {
		if h.AvailableEnd == nil || h.AvailableEnd.Before(asOf) {
			continue
		}
		if _, ok := h.Location(); !ok {
			continue
		}
		out = append(out, h)
	}
	return out
}

// FilterActionableCustomers keeps customers at stage 2 or later whose end date is strictly after asOf.
// With requirePaid, unpaid customers are dropped too.
func FilterActionableCustomers(customers []models.CustomerRecord, asOf time.Time, requirePaid bool) []models.CustomerRecord {
	return filterActionable(customers, asOf, requirePaid, DefaultActionableMinStage)
}

// FilterPendingCustomers keeps customers at stage 0 or 1 with a future end date and a matched host.
func FilterPendingCustomers(customers []models.CustomerRecord, asOf time.Time) []models.CustomerRecord {
	return filterPending(customers, asOf, DefaultPendingStages)
}

func filterActionable(customers []models.CustomerRecord, asOf time.Time, requirePaid bool, minStage models.Stage) []models.CustomerRecord {
	asOf = models.DateOf(asOf)
	out := make([]models.CustomerRecord, 0, len(customers))
	for _, c := range customers {
		if c.Stage < minStage || c.Stage == models.StageUnknown {
			continue
		}
		if !endsAfter(c, asOf) {
			continue
		}
		if requirePaid && !c.HasPaid {
			continue
		}
		if _, ok := c.Location(); !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func filterPending(customers []models.CustomerRecord, asOf time.Time, stages []models.Stage) []models.CustomerRecord {
	asOf = models.DateOf(asOf)
	out := make([]models.CustomerRecord, 0, len(customers))
	for _, c := range customers {
		if !stageIn(c.Stage, stages) {
			continue
		}
		if !endsAfter(c, asOf) || !c.HasMatch() {
			continue
		}
		if _, ok := c.Location(); !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func endsAfter(c models.CustomerRecord, asOf time.Time) bool {
	return c.EndDate != nil && c.EndDate.After(asOf)
}

func stageIn(s models.Stage, stages []models.Stage) bool {
	for _, candidate := range stages {
		if s == candidate {
			return true
		}
	}
	return false
}

// ClassifyCustomerStatus maps a stage code to its display label; unknown codes map to "Unknown".
func ClassifyCustomerStatus(stage int) string {
	return models.Stage(stage).Label()
}
