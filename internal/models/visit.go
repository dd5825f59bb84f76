package models

import "time"

// Visit is a dealer visit request. The id is generated at creation time and
// never changes; car_location is a snapshot taken when the visit was opened.
type Visit struct {
	ID                string     `json:"id"`
	CarName           string     `json:"car_name"`
	RequestID         string     `json:"request_id,omitempty"`
	DealerName        string     `json:"dealer_name"`
	DealerPhoneNumber string     `json:"dealer_phone_number"`
	VisitDate         time.Time  `json:"visit_date"`
	TimeSlot          string     `json:"time_slot"`
	CarLocation       string     `json:"car_location"`
	AgentName         string     `json:"agent_name"`
	Status            string     `json:"status"` // open, confirmed, cancelled
	Notes             string     `json:"notes,omitempty"`
	OpenedBy          string     `json:"opened_by"`
	OpenedAt          time.Time  `json:"opened_at"`
	ConfirmedBy       string     `json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// IsActive reports whether the visit still shows up on the manage screen.
func (v *Visit) IsActive() bool {
	return v.Status == StatusOpen || v.Status == StatusConfirmed
}

// VisitDraft is the caller-supplied input for opening a visit.
// CarLocation is optional; when empty the service resolves it from the
// fleet snapshot for the visit date. The agent opening the visit is
// recorded as opened_by, there is no separate field for it.
type VisitDraft struct {
	CarName           string    `json:"car_name"`
	RequestID         string    `json:"request_id,omitempty"`
	DealerName        string    `json:"dealer_name"`
	DealerPhoneNumber string    `json:"dealer_phone_number"`
	VisitDate         time.Time `json:"visit_date"`
	TimeSlot          string    `json:"time_slot"`
	CarLocation       string    `json:"car_location,omitempty"`
	AgentName         string    `json:"agent_name"`
	Notes             string    `json:"notes,omitempty"`
}

// Outcome is the result of a conditional state transition. A transition
// that finds no row in the required status is a conflict, not an error.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}
