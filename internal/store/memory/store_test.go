package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
	"github.com/Drax929/orderly-patient-nexus/internal/store"

	"github.com/google/uuid"
)

func newTestStore() *Store {
	return NewStore(time.UTC, models.Profile{
		DoctorName:             "Dr. John Doe",
		ClinicName:             "Wellness Medical Center",
		Morning:                &models.ScheduleWindow{Start: "09:00", End: "12:00"},
		Evening:                &models.ScheduleWindow{Start: "17:00", End: "20:00"},
		AvgConsultationMinutes: 15,
	})
}

func register(t *testing.T, s *Store, name string, createdAt time.Time) models.Visit {
	t.Helper()
	visit, created, err := s.RegisterVisit(context.Background(), store.RegisterVisitInput{
		RequestID: uuid.NewString(),
		Name:      name,
		Contact:   "9876543210",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if !created {
		t.Fatalf("expected a new visit for %s", name)
	}
	return visit
}

func TestSerialNumbersAreContiguous(t *testing.T) {
	s := newTestStore()
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		visit := register(t, s, "Patient", day.Add(time.Duration(i)*time.Minute))
		if visit.SerialNumber != i {
			t.Fatalf("registration %d got serial %d", i, visit.SerialNumber)
		}
	}
}

func TestSerialNumbersResetAcrossDays(t *testing.T) {
	s := newTestStore()
	yesterday := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		register(t, s, "Yesterday", yesterday.Add(time.Duration(i)*time.Minute))
	}

	visit := register(t, s, "Today", today)
	if visit.SerialNumber != 1 {
		t.Fatalf("first registration of a new day got serial %d", visit.SerialNumber)
	}
	if visit.Day != "2026-03-02" {
		t.Fatalf("unexpected day %s", visit.Day)
	}
}

func TestDayScopingUsesClinicTimezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := NewStore(kolkata, models.Profile{AvgConsultationMinutes: 15})

	// 20:00 UTC on March 1 is already March 2 in Kolkata.
	lateUTC := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	visit := register(t, s, "Patient", lateUTC)
	if visit.Day != "2026-03-02" {
		t.Fatalf("expected clinic-local day 2026-03-02, got %s", visit.Day)
	}
}

func TestRegisterIsIdempotentPerRequestID(t *testing.T) {
	s := newTestStore()
	createdAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	requestID := uuid.NewString()
	input := store.RegisterVisitInput{
		RequestID: requestID,
		Name:      "Asha Rao",
		Contact:   "9876543210",
		CreatedAt: createdAt,
	}

	first, created, err := s.RegisterVisit(context.Background(), input)
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	second, created, err := s.RegisterVisit(context.Background(), input)
	if err != nil {
		t.Fatalf("replayed register: %v", err)
	}
	if created {
		t.Fatalf("replay must not create a second visit")
	}
	if second.VisitID != first.VisitID || second.SerialNumber != first.SerialNumber {
		t.Fatalf("replay returned a different visit: %+v vs %+v", second, first)
	}

	stats, err := s.QueueStats(context.Background(), first.Day)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.WaitingCount != 1 || stats.NextSerial != 2 {
		t.Fatalf("unexpected stats after replay: %+v", stats)
	}
}

func TestCallNextPicksLowestSerial(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	first := register(t, s, "First", base)
	register(t, s, "Second", base.Add(time.Minute))
	register(t, s, "Third", base.Add(2*time.Minute))

	called, ok, err := s.CallNext(context.Background(), store.CallNextInput{
		RequestID: uuid.NewString(),
		CalledAt:  base.Add(10 * time.Minute),
	})
	if err != nil || !ok {
		t.Fatalf("call next: ok=%v err=%v", ok, err)
	}
	if called.VisitID != first.VisitID || called.SerialNumber != 1 {
		t.Fatalf("expected serial 1, got %d", called.SerialNumber)
	}
	if called.Status != models.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", called.Status)
	}
	if called.CalledAt == nil {
		t.Fatalf("called_at not set")
	}
}

func TestCallNextOnEmptyQueue(t *testing.T) {
	s := newTestStore()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, _, err := s.CallNext(context.Background(), store.CallNextInput{
		RequestID: uuid.NewString(),
		CalledAt:  now,
	})
	if !errors.Is(err, store.ErrNoWaitingVisits) {
		t.Fatalf("expected ErrNoWaitingVisits, got %v", err)
	}

	stats, err := s.QueueStats(context.Background(), models.DayOf(now, time.UTC))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.WaitingCount != 0 || stats.InProgressCount != 0 || stats.CompletedCount != 0 {
		t.Fatalf("empty call-next mutated state: %+v", stats)
	}
}

func TestCallNextRejectsWhileInProgress(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	register(t, s, "First", base)
	register(t, s, "Second", base.Add(time.Minute))

	if _, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("first call next: %v", err)
	}
	_, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(6 * time.Minute)})
	if !errors.Is(err, store.ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}
}

func TestCompleteAdvancesAndNeverRegresses(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	register(t, s, "First", base)
	register(t, s, "Second", base.Add(time.Minute))

	called, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}

	done, ok, err := s.CompleteVisit(context.Background(), store.CompleteVisitInput{
		RequestID:   uuid.NewString(),
		VisitID:     called.VisitID,
		CompletedAt: base.Add(20 * time.Minute),
	})
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	if done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed visit: %+v", done)
	}

	// Completing again is an invalid transition, not a regression.
	_, _, err = s.CompleteVisit(context.Background(), store.CompleteVisitInput{
		RequestID: uuid.NewString(),
		VisitID:   called.VisitID,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	got, err := s.GetVisit(context.Background(), called.VisitID)
	if err != nil {
		t.Fatalf("get visit: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("completed visit moved to %s", got.Status)
	}

	// Queue resumes with the next serial once the slot is free.
	next, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(25 * time.Minute)})
	if err != nil {
		t.Fatalf("second call next: %v", err)
	}
	if next.SerialNumber != 2 {
		t.Fatalf("expected serial 2, got %d", next.SerialNumber)
	}
}

func TestCompleteOnWaitingVisit(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	visit := register(t, s, "First", base)

	_, _, err := s.CompleteVisit(context.Background(), store.CompleteVisitInput{
		RequestID: uuid.NewString(),
		VisitID:   visit.VisitID,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteUnknownVisit(t *testing.T) {
	s := newTestStore()
	_, _, err := s.CompleteVisit(context.Background(), store.CompleteVisitInput{
		RequestID: uuid.NewString(),
		VisitID:   uuid.NewString(),
	})
	if !errors.Is(err, store.ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestCountWaitingAhead(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		register(t, s, "Patient", base.Add(time.Duration(i)*time.Minute))
	}

	ahead, err := s.CountWaitingAhead(context.Background(), "2026-03-02", 4)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if ahead != 3 {
		t.Fatalf("expected 3 ahead of serial 4, got %d", ahead)
	}

	// Calling serial 1 removes it from the waiting count.
	if _, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("call next: %v", err)
	}
	ahead, err = s.CountWaitingAhead(context.Background(), "2026-03-02", 4)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if ahead != 2 {
		t.Fatalf("expected 2 ahead after call, got %d", ahead)
	}
}

func TestProfileUpdatePreservesUnrelatedFields(t *testing.T) {
	s := newTestStore()
	newName := "Sunrise Clinic"

	updated, err := s.UpdateProfile(context.Background(), models.ProfileUpdate{ClinicName: &newName})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.ClinicName != newName {
		t.Fatalf("clinic name not updated: %s", updated.ClinicName)
	}
	if updated.DoctorName != "Dr. John Doe" {
		t.Fatalf("doctor name clobbered: %s", updated.DoctorName)
	}
	if updated.Morning == nil || updated.Morning.Start != "09:00" {
		t.Fatalf("morning window clobbered: %+v", updated.Morning)
	}
	if updated.AvgConsultationMinutes != 15 {
		t.Fatalf("consultation minutes clobbered: %d", updated.AvgConsultationMinutes)
	}

	got, err := s.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.ClinicName != newName {
		t.Fatalf("update not persisted: %s", got.ClinicName)
	}
}

func TestProfileRejectsNonPositiveConsultMinutes(t *testing.T) {
	s := newTestStore()
	zero := 0
	if _, err := s.UpdateProfile(context.Background(), models.ProfileUpdate{AvgConsultationMinutes: &zero}); !errors.Is(err, store.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestVisitEventsChain(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	visit := register(t, s, "Asha Rao", base)

	if _, _, err := s.CallNext(context.Background(), store.CallNextInput{RequestID: uuid.NewString(), CalledAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("call next: %v", err)
	}
	if _, _, err := s.CompleteVisit(context.Background(), store.CompleteVisitInput{RequestID: uuid.NewString(), VisitID: visit.VisitID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	events, err := s.ListVisitEvents(context.Background(), visit.VisitID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, event := range events {
		if event.VisitSeq != i+1 {
			t.Fatalf("event %d has seq %d", i, event.VisitSeq)
		}
		if i > 0 && event.PrevHash != events[i-1].Hash {
			t.Fatalf("event %d does not chain to predecessor", i)
		}
	}

	rehydrated, err := store.RehydrateVisit(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if rehydrated.Status != models.StatusCompleted || rehydrated.SerialNumber != visit.SerialNumber {
		t.Fatalf("rehydrated visit mismatch: %+v", rehydrated)
	}
}

func TestOutboxEventsAfterCursor(t *testing.T) {
	s := newTestStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	register(t, s, "First", base)

	all, err := s.ListOutboxEvents(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(all) != 1 || all[0].Type != "visit.registered" {
		t.Fatalf("unexpected outbox contents: %+v", all)
	}

	later, err := s.ListOutboxEvents(context.Background(), all[0].CreatedAt, 10)
	if err != nil {
		t.Fatalf("list outbox after cursor: %v", err)
	}
	if len(later) != 0 {
		t.Fatalf("expected no events after cursor, got %d", len(later))
	}
}
