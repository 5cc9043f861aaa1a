package models

import (
	"testing"
	"time"
)

func TestDayOf(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	cases := []struct {
		name string
		t    time.Time
		loc  *time.Location
		want string
	}{
		{"utc midday", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.UTC, "2026-03-02"},
		{"utc just before midnight", time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC), time.UTC, "2026-03-02"},
		{"utc midnight rolls over", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), time.UTC, "2026-03-03"},
		{"late utc is next day in kolkata", time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC), kolkata, "2026-03-03"},
		{"early utc is same day in kolkata", time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), kolkata, "2026-03-02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DayOf(tc.t, tc.loc); got != tc.want {
				t.Fatalf("DayOf(%v, %v) = %q, want %q", tc.t, tc.loc, got, tc.want)
			}
		})
	}
}
