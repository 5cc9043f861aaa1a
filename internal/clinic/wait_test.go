package clinic

import (
	"testing"
	"time"
)

func TestEstimateWait(t *testing.T) {
	cases := []struct {
		name         string
		waitingAhead int
		avgMinutes   int
		want         time.Duration
	}{
		{"three ahead", 3, 15, 45 * time.Minute},
		{"five ahead", 5, 15, 75 * time.Minute},
		{"nobody ahead", 0, 15, 0},
		{"negative clamps to zero", -2, 15, 0},
		{"zero average", 4, 0, 0},
		{"custom average", 2, 20, 40 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateWait(tc.waitingAhead, tc.avgMinutes); got != tc.want {
				t.Fatalf("EstimateWait(%d, %d) = %v, want %v", tc.waitingAhead, tc.avgMinutes, got, tc.want)
			}
		})
	}
}

func TestFormatWait(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 mins"},
		{time.Minute, "1 min"},
		{45 * time.Minute, "45 mins"},
		{59 * time.Minute, "59 mins"},
		{time.Hour, "1 hr"},
		{61 * time.Minute, "1 hr 1 min"},
		{75 * time.Minute, "1 hr 15 mins"},
		{2 * time.Hour, "2 hrs"},
		{150 * time.Minute, "2 hrs 30 mins"},
		{-time.Minute, "0 mins"},
	}
	for _, tc := range cases {
		if got := FormatWait(tc.d); got != tc.want {
			t.Fatalf("FormatWait(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
