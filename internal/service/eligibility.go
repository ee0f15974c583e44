package service

import "time"

// EligibilityStatus classifies a scan attempt against a time slot window.
type EligibilityStatus string

const (
	// Eligible means the scan lands on the event day at or after the slot
	// opens. There is no upper bound: late scans are still recorded.
	Eligible EligibilityStatus = "eligible"
	// NotEventDay means the scan happened on a different calendar day than
	// the event.
	NotEventDay EligibilityStatus = "not_event_day"
	// TooEarly means the scan happened on the event day but before the slot
	// opens; AvailableAt says when it will.
	TooEarly EligibilityStatus = "too_early"
)

// EligibilityResult is the gate verdict. AvailableAt is set only for TooEarly.
type EligibilityResult struct {
	Status      EligibilityStatus
	AvailableAt time.Time
}

// CheckEligibility decides whether a scan at `now` is inside the window that
// opens at eventDate + slotStart. The event date's stored calendar day is
// compared against the server-local calendar day of `now`; events carry no
// timezone of their own, so the deployment's local day is authoritative.
// Pure and deterministic in its three inputs.
func CheckEligibility(now, eventDate time.Time, slotStart time.Duration) EligibilityResult {
	ny, nm, nd := now.Date()
	ey, em, ed := eventDate.Date()
	if ny != ey || nm != em || nd != ed {
		return EligibilityResult{Status: NotEventDay}
	}

	availableAt := time.Date(ey, em, ed, 0, 0, 0, 0, now.Location()).Add(slotStart)
	if now.Before(availableAt) {
		return EligibilityResult{Status: TooEarly, AvailableAt: availableAt}
	}

	return EligibilityResult{Status: Eligible}
}
