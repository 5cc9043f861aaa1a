package models

import "time"

type Visit struct {
	VisitID      string     `json:"visit_id"`
	Name         string     `json:"name"`
	Contact      string     `json:"contact"`
	SerialNumber int        `json:"serial_number"`
	Status       string     `json:"status"`
	Day          string     `json:"day"`
	CreatedAt    time.Time  `json:"created_at"`
	RequestID    string     `json:"request_id,omitempty"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

const DayFormat = "2006-01-02"

// DayOf reduces a timestamp to the clinic's calendar date. All day scoping
// (serial allocation, queue filters, history grouping) goes through this.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayFormat)
}
