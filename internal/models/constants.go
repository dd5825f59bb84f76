package models

const (
	StatusOpen      = "open"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// UnknownLocation is stored when the fleet lookup for a car fails at creation
// time. The snapshot is never re-resolved afterwards.
const UnknownLocation = "Unknown"

// TimeSlots are the hour-long labels a visit can be proposed for.
var TimeSlots = []string{
	"09:00 - 10:00",
	"10:00 - 11:00",
	"11:00 - 12:00",
	"12:00 - 13:00",
	"13:00 - 14:00",
	"14:00 - 15:00",
	"15:00 - 16:00",
	"16:00 - 17:00",
}

// IsTimeSlot reports whether s is one of the allowed slot labels.
func IsTimeSlot(s string) bool {
	for _, slot := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// CancelReasons is the catalogue offered by the cancel form.
var CancelReasons = []string{
	"Car Sold",
	"Being Sold",
	"Dealer Not Eligible",
	"Client Changed His Mind",
	"Wrong Car Selected",
	"Reallocated to Retail",
	"Queue Abandoned",
	"Dealer Not Reached",
	"Dealer Refused to Wait",
	"Wrong Request Submitted",
	"Car Under Maintenance",
}

const (
	// MaxVisitAdvanceDays limits how far ahead the create form may schedule.
	MaxVisitAdvanceDays = 30

	// ActiveVisitsCacheTTL keeps the manage screen reasonably fresh.
	ActiveVisitsCacheTTL = 30 // seconds

	// FleetCacheTTL covers car locations and the movement queue.
	FleetCacheTTL = 5 * 60 // seconds

	// DirectoryCacheTTL covers dealers and car name dropdowns.
	DirectoryCacheTTL = 10 * 60 // seconds

	// WorkerQueueSize is the in-memory sync queue capacity.
	WorkerQueueSize = 1000
)
