package models

// Stage is a customer's deal lifecycle code.
// Transitions happen upstream; this service only reads the value.
type Stage int

const (
	StageUnknown                     Stage = -1
	StageAwaitingHostAcceptance      Stage = 0
	StageAwaitingCustomerTransaction Stage = 1
	StageTransactionSucceeded        Stage = 2
	StageInStorage                   Stage = 3
	StageCompleted                   Stage = 4
)

// StatusUnknown is the label for any stage outside the known set.
const StatusUnknown = "Unknown"

var stageLabels = map[Stage]string{
	StageAwaitingHostAcceptance:      "Awaiting Host Acceptance",
	StageAwaitingCustomerTransaction: "Awaiting Customer Transaction",
	StageTransactionSucceeded:        "Transaction Succeeded",
	StageInStorage:                   "In Storage Process",
	StageCompleted:                   "Completed Deal",
}

// Label returns the display status for the stage. It is defined for every value.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return StatusUnknown
}
