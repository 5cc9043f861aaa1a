// Package memory holds a single-process VisitStore used for development and
// engine tests. It keeps the same invariants as the Postgres store behind one
// mutex instead of transactions.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
	"github.com/Drax929/orderly-patient-nexus/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	loc     *time.Location
	visits  map[string]*models.Visit
	order   []string
	serials map[string]int

	profile models.Profile

	byRequestID    map[string]string
	actionRequests map[string]actionResult

	outbox      []store.OutboxEvent
	visitEvents map[string][]store.VisitEvent
}

type actionResult struct {
	action  string
	visitID string
}

func NewStore(loc *time.Location, defaultProfile models.Profile) *Store {
	if loc == nil {
		loc = time.Local
	}
	if defaultProfile.AvgConsultationMinutes <= 0 {
		defaultProfile.AvgConsultationMinutes = 15
	}
	return &Store{
		loc:            loc,
		visits:         make(map[string]*models.Visit),
		serials:        make(map[string]int),
		profile:        defaultProfile,
		byRequestID:    make(map[string]string),
		actionRequests: make(map[string]actionResult),
		visitEvents:    make(map[string][]store.VisitEvent),
	}
}

func (s *Store) RegisterVisit(ctx context.Context, input store.RegisterVisitInput) (models.Visit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if visitID, ok := s.byRequestID[input.RequestID]; ok {
		return *s.visits[visitID], false, nil
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	day := models.DayOf(createdAt, s.loc)

	s.serials[day]++
	visit := models.Visit{
		VisitID:      uuid.NewString(),
		Name:         input.Name,
		Contact:      input.Contact,
		SerialNumber: s.serials[day],
		Status:       models.StatusWaiting,
		Day:          day,
		CreatedAt:    createdAt,
		RequestID:    input.RequestID,
	}

	s.visits[visit.VisitID] = &visit
	s.order = append(s.order, visit.VisitID)
	s.byRequestID[input.RequestID] = visit.VisitID
	s.emit("visit.registered", visit)

	return visit, true, nil
}

func (s *Store) GetVisit(ctx context.Context, visitID string) (models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visit, ok := s.visits[visitID]
	if !ok {
		return models.Visit{}, store.ErrVisitNotFound
	}
	return *visit, nil
}

func (s *Store) ListVisits(ctx context.Context, day, status string) ([]models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var visits []models.Visit
	for _, id := range s.order {
		visit := s.visits[id]
		if visit.Day != day {
			continue
		}
		if status != "" && visit.Status != status {
			continue
		}
		visits = append(visits, *visit)
	}
	sort.Slice(visits, func(i, j int) bool {
		return visits[i].SerialNumber < visits[j].SerialNumber
	})
	return visits, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Visit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result, ok := s.actionRequests[input.RequestID]; ok && result.action == "call_next" {
		if result.visitID == "" {
			return models.Visit{}, false, store.ErrNoWaitingVisits
		}
		return *s.visits[result.visitID], false, nil
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	day := models.DayOf(calledAt, s.loc)

	var next *models.Visit
	for _, id := range s.order {
		visit := s.visits[id]
		if visit.Day != day {
			continue
		}
		if visit.Status == models.StatusInProgress {
			return models.Visit{}, false, store.ErrAlreadyInProgress
		}
		if visit.Status != models.StatusWaiting {
			continue
		}
		if next == nil || visit.SerialNumber < next.SerialNumber {
			next = visit
		}
	}
	if next == nil {
		s.actionRequests[input.RequestID] = actionResult{action: "call_next"}
		return models.Visit{}, false, store.ErrNoWaitingVisits
	}

	next.Status = models.StatusInProgress
	next.CalledAt = &calledAt
	s.actionRequests[input.RequestID] = actionResult{action: "call_next", visitID: next.VisitID}
	s.emit("visit.called", *next)

	result := *next
	result.RequestID = input.RequestID
	return result, true, nil
}

func (s *Store) CompleteVisit(ctx context.Context, input store.CompleteVisitInput) (models.Visit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result, ok := s.actionRequests[input.RequestID]; ok && result.action == "complete" {
		if result.visitID == "" {
			return models.Visit{}, false, store.ErrInvalidState
		}
		return *s.visits[result.visitID], false, nil
	}

	visit, ok := s.visits[input.VisitID]
	if !ok {
		return models.Visit{}, false, store.ErrVisitNotFound
	}
	if !store.ValidTransition("complete", visit.Status) {
		return models.Visit{}, false, store.ErrInvalidState
	}

	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	visit.Status = models.StatusCompleted
	visit.CompletedAt = &completedAt
	s.actionRequests[input.RequestID] = actionResult{action: "complete", visitID: visit.VisitID}
	s.emit("visit.completed", *visit)

	result := *visit
	result.RequestID = input.RequestID
	return result, true, nil
}

func (s *Store) CurrentVisit(ctx context.Context, day string) (models.Visit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		visit := s.visits[id]
		if visit.Day == day && visit.Status == models.StatusInProgress {
			return *visit, true, nil
		}
	}
	return models.Visit{}, false, nil
}

func (s *Store) CountWaitingAhead(ctx context.Context, day string, serialNumber int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range s.order {
		visit := s.visits[id]
		if visit.Day == day && visit.Status == models.StatusWaiting && visit.SerialNumber < serialNumber {
			count++
		}
	}
	return count, nil
}

func (s *Store) QueueStats(ctx context.Context, day string) (store.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := store.QueueStats{Day: day}
	total := 0
	for _, id := range s.order {
		visit := s.visits[id]
		if visit.Day != day {
			continue
		}
		total++
		switch visit.Status {
		case models.StatusWaiting:
			stats.WaitingCount++
		case models.StatusInProgress:
			stats.InProgressCount++
		case models.StatusCompleted:
			stats.CompletedCount++
		}
	}
	stats.NextSerial = total + 1
	return stats, nil
}

func (s *Store) GetProfile(ctx context.Context) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.AvgConsultationMinutes != nil && *update.AvgConsultationMinutes <= 0 {
		return models.Profile{}, store.ErrInvalidProfile
	}

	if update.DoctorName != nil {
		s.profile.DoctorName = *update.DoctorName
	}
	if update.ClinicName != nil {
		s.profile.ClinicName = *update.ClinicName
	}
	if update.Morning != nil {
		s.profile.Morning = update.Morning
	}
	if update.Evening != nil {
		s.profile.Evening = update.Evening
	}
	if update.AvgConsultationMinutes != nil {
		s.profile.AvgConsultationMinutes = *update.AvgConsultationMinutes
	}
	return s.profile, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var events []store.OutboxEvent
	for _, event := range s.outbox {
		if !after.IsZero() && !event.CreatedAt.After(after) {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (s *Store) ListVisitEvents(ctx context.Context, visitID string) ([]store.VisitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]store.VisitEvent, len(s.visitEvents[visitID]))
	copy(events, s.visitEvents[visitID])
	return events, nil
}

// emit appends an outbox event and a hash-chained visit event. Callers hold
// the mutex.
func (s *Store) emit(eventType string, visit models.Visit) {
	payload, err := json.Marshal(visit)
	if err != nil {
		return
	}
	createdAt := time.Now().UTC()
	s.outbox = append(s.outbox, store.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
	})

	chain := s.visitEvents[visit.VisitID]
	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}
	seq := len(chain) + 1
	s.visitEvents[visit.VisitID] = append(chain, store.VisitEvent{
		VisitID:   visit.VisitID,
		VisitSeq:  seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prev,
		Hash:      store.ComputeVisitEventHash(prev, visit.VisitID, eventType, payload, createdAt, seq),
	})
}
