package clinic

import (
	"fmt"
	"time"
)

// EstimateWait projects the wait for a patient with the given number of
// waiting patients ahead. It is a linear projection off the configured
// average; no accuracy is promised.
func EstimateWait(waitingAhead, avgConsultationMinutes int) time.Duration {
	if waitingAhead < 0 {
		waitingAhead = 0
	}
	if avgConsultationMinutes <= 0 {
		return 0
	}
	return time.Duration(waitingAhead*avgConsultationMinutes) * time.Minute
}

// FormatWait renders a wait duration the way the patient-facing pages show
// it: plain minutes below an hour, "H hr M mins" above, zero minutes elided.
func FormatWait(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%d %s", minutes, plural("min", minutes))
	}
	hours := minutes / 60
	rest := minutes % 60
	out := fmt.Sprintf("%d %s", hours, plural("hr", hours))
	if rest > 0 {
		out += fmt.Sprintf(" %d %s", rest, plural("min", rest))
	}
	return out
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
