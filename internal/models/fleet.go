package models

import "time"

// CarStatus is a row of the daily fleet snapshot.
type CarStatus struct {
	CarName      string    `json:"car_name"`
	Location     string    `json:"location_stage_name"`
	Allocation   string    `json:"allocation_category"`
	CurrentState string    `json:"current_status"`
	DateKey      time.Time `json:"date_key"`
}

// Dealer is a directory entry used to populate the visit form.
type Dealer struct {
	Code  string `json:"dealer_code" yaml:"code"`
	Name  string `json:"dealer_name" yaml:"name"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
}

// MovementRequest is an in-progress entry of the dealer movement queue.
type MovementRequest struct {
	RequestID     string     `json:"request_id"`
	DealerName    string     `json:"dealer_name"`
	CarName       string     `json:"car_name"`
	RequestType   string     `json:"request_type"`
	RequestStatus string     `json:"request_status"`
	BuyNowType    string     `json:"buy_now_type,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	ContactedUser string     `json:"contacted_user,omitempty"`
	ContactedAt   *time.Time `json:"contacted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Progress classifies how far along the request is.
func (m *MovementRequest) Progress() string {
	switch {
	case m.ContactedUser != "":
		return "Contacted"
	case m.RequestStatus == "received":
		return "Received"
	default:
		return "Passed the contacted stage"
	}
}

// SLAMinutes returns minutes from creation to first contact, or -1 when the
// dealer has not been contacted yet.
func (m *MovementRequest) SLAMinutes() int64 {
	if m.ContactedAt == nil {
		return -1
	}
	return int64(m.ContactedAt.Sub(m.CreatedAt).Minutes())
}

// QueueEntry is a movement request decorated with its derived fields,
// shaped for the queue dashboard.
type QueueEntry struct {
	MovementRequest
	Progress   string `json:"progress"`
	SLAMinutes int64  `json:"sla_minutes"`
}

func NewQueueEntry(m *MovementRequest) *QueueEntry {
	return &QueueEntry{
		MovementRequest: *m,
		Progress:        m.Progress(),
		SLAMinutes:      m.SLAMinutes(),
	}
}

// QueueSummary aggregates the movement queue for the dashboard header.
type QueueSummary struct {
	Total             int     `json:"total"`
	Contacted         int     `json:"contacted"`
	AverageSLAMinutes float64 `json:"average_sla_minutes"`
}

// SummarizeQueue computes totals over the queue. The SLA average only
// covers entries that have been contacted.
func SummarizeQueue(entries []*QueueEntry) QueueSummary {
	summary := QueueSummary{Total: len(entries)}

	var slaSum int64
	for _, e := range entries {
		if e.SLAMinutes >= 0 {
			summary.Contacted++
			slaSum += e.SLAMinutes
		}
	}
	if summary.Contacted > 0 {
		summary.AverageSLAMinutes = float64(slaSum) / float64(summary.Contacted)
	}
	return summary
}
