package clinic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
)

const (
	WindowMorning = "morning"
	WindowEvening = "evening"
)

// OpenState reports whether the clinic is open right now and which schedule
// window applies.
type OpenState struct {
	Open   bool   `json:"open"`
	Window string `json:"window,omitempty"`
	Label  string `json:"label"`
}

// IsOpen compares the local hour against the schedule window boundary hours.
// The comparison is deliberately hour-granular: a window ending 12:30 closes
// at 12:00 as far as this check is concerned, matching the behavior the
// front-end has always shown. Minutes in the boundary are ignored.
func IsOpen(now time.Time, loc *time.Location, profile models.Profile) OpenState {
	hour := now.In(loc).Hour()

	if inWindow(hour, profile.Morning) {
		return OpenState{
			Open:   true,
			Window: WindowMorning,
			Label:  fmt.Sprintf("Morning: %s - %s", profile.Morning.Start, profile.Morning.End),
		}
	}
	if inWindow(hour, profile.Evening) {
		return OpenState{
			Open:   true,
			Window: WindowEvening,
			Label:  fmt.Sprintf("Evening: %s - %s", profile.Evening.Start, profile.Evening.End),
		}
	}
	return OpenState{Label: "Clinic is currently closed"}
}

func inWindow(hour int, window *models.ScheduleWindow) bool {
	if window == nil {
		return false
	}
	start, okStart := boundaryHour(window.Start)
	end, okEnd := boundaryHour(window.End)
	if !okStart || !okEnd {
		return false
	}
	return hour >= start && hour < end
}

func boundaryHour(value string) (int, bool) {
	head, _, _ := strings.Cut(value, ":")
	hour, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}
