package matching

import (
	"time"

	"github.com/storeit/dashboard/internal/models"
)

// Policy carries the configurable parts of the customer predicates.
// Older dashboard variants disagreed on the paid check and on pending stages, so both are settings.
type Policy struct {
	PendingStages      []models.Stage
	ActionableMinStage models.Stage
	RequirePaid        bool
}

// DefaultPolicy matches the current dashboard: stage >= 2, no paid check, pending = {0, 1}.
func DefaultPolicy() Policy {
	stages := make([]models.Stage, len(DefaultPendingStages))
	copy(stages, DefaultPendingStages)
	return Policy{
		PendingStages:      stages,
		ActionableMinStage: DefaultActionableMinStage,
		RequirePaid:        false,
	}
}

// Actionable applies the actionable predicate with this policy's thresholds.
// requirePaid overrides the policy default when non-nil.
func (p Policy) Actionable(customers []models.CustomerRecord, asOf time.Time, requirePaid *bool) []models.CustomerRecord {
	paid := p.RequirePaid
	if requirePaid != nil {
		paid = *requirePaid
	}
	return filterActionable(customers, asOf, paid, p.ActionableMinStage)
}

// Pending applies the pending predicate with this policy's stage set.
func (p Policy) Pending(customers []models.CustomerRecord, asOf time.Time) []models.CustomerRecord {
	stages := p.PendingStages
	if len(stages) == 0 {
		stages = DefaultPendingStages
	}
	return filterPending(customers, asOf, stages)
}
