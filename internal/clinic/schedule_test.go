package clinic

import (
	"testing"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
)

func defaultSchedule() models.Profile {
	return models.Profile{
		Morning: &models.ScheduleWindow{Start: "09:00", End: "12:00"},
		Evening: &models.ScheduleWindow{Start: "17:00", End: "20:00"},
	}
}

func TestIsOpen(t *testing.T) {
	cases := []struct {
		name       string
		hour       int
		wantOpen   bool
		wantWindow string
	}{
		{"before morning", 8, false, ""},
		{"morning opens on the hour", 9, true, WindowMorning},
		{"mid morning", 11, true, WindowMorning},
		{"morning end is exclusive", 12, false, ""},
		{"afternoon gap", 14, false, ""},
		{"evening opens on the hour", 17, true, WindowEvening},
		{"mid evening", 19, true, WindowEvening},
		{"evening end is exclusive", 20, false, ""},
		{"late night", 23, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 2, tc.hour, 30, 0, 0, time.UTC)
			got := IsOpen(now, time.UTC, defaultSchedule())
			if got.Open != tc.wantOpen || got.Window != tc.wantWindow {
				t.Fatalf("IsOpen at hour %d = %+v, want open=%v window=%q", tc.hour, got, tc.wantOpen, tc.wantWindow)
			}
		})
	}
}

func TestIsOpenIgnoresBoundaryMinutes(t *testing.T) {
	profile := models.Profile{
		Morning: &models.ScheduleWindow{Start: "09:30", End: "12:30"},
	}

	// 09:00 counts as open even though the window says 09:30; the check is
	// hour-granular.
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := IsOpen(at, time.UTC, profile); !got.Open {
		t.Fatalf("expected open at 09:00 with 09:30 start, got %+v", got)
	}

	// 12:15 counts as closed even though the window runs to 12:30.
	at = time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC)
	if got := IsOpen(at, time.UTC, profile); got.Open {
		t.Fatalf("expected closed at 12:15 with 12:30 end, got %+v", got)
	}
}

func TestIsOpenLabels(t *testing.T) {
	profile := defaultSchedule()

	got := IsOpen(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), time.UTC, profile)
	if got.Label != "Morning: 09:00 - 12:00" {
		t.Fatalf("unexpected morning label %q", got.Label)
	}

	got = IsOpen(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), time.UTC, profile)
	if got.Label != "Evening: 17:00 - 20:00" {
		t.Fatalf("unexpected evening label %q", got.Label)
	}

	got = IsOpen(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), time.UTC, profile)
	if got.Label != "Clinic is currently closed" {
		t.Fatalf("unexpected closed label %q", got.Label)
	}
}

func TestIsOpenWithMissingWindows(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	got := IsOpen(at, time.UTC, models.Profile{})
	if got.Open {
		t.Fatalf("no windows configured but clinic reported open: %+v", got)
	}

	eveningOnly := models.Profile{Evening: &models.ScheduleWindow{Start: "17:00", End: "20:00"}}
	if got := IsOpen(at, time.UTC, eveningOnly); got.Open {
		t.Fatalf("10:00 with evening-only schedule reported open: %+v", got)
	}
	if got := IsOpen(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), time.UTC, eveningOnly); !got.Open {
		t.Fatalf("18:00 with evening-only schedule reported closed")
	}
}

func TestIsOpenUsesClinicTimezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 04:30 UTC is 10:00 in Kolkata, inside the morning window.
	at := time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)
	if got := IsOpen(at, kolkata, defaultSchedule()); !got.Open || got.Window != WindowMorning {
		t.Fatalf("expected morning window in clinic timezone, got %+v", got)
	}
}

func TestBoundaryHourRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "ab:00", "25:00", "-1:00"} {
		if _, ok := boundaryHour(bad); ok {
			t.Fatalf("boundaryHour(%q) accepted", bad)
		}
	}
	if hour, ok := boundaryHour("09:00"); !ok || hour != 9 {
		t.Fatalf("boundaryHour(09:00) = %d, %v", hour, ok)
	}
}
