package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
)

type RegisterVisitInput struct {
	RequestID string
	Name      string
	Contact   string
	CreatedAt time.Time
}

type CallNextInput struct {
	RequestID string
	CalledAt  time.Time
}

type CompleteVisitInput struct {
	RequestID   string
	VisitID     string
	CompletedAt time.Time
}

// QueueStats summarizes one clinic day for the status page.
type QueueStats struct {
	Day             string `json:"day"`
	WaitingCount    int    `json:"waiting_count"`
	InProgressCount int    `json:"in_progress_count"`
	CompletedCount  int    `json:"completed_count"`
	NextSerial      int    `json:"next_serial"`
}

// VisitStore is the persistence seam for the queue engine. Implementations
// must make serial allocation atomic and keep at most one in_progress visit
// per day.
type VisitStore interface {
	RegisterVisit(ctx context.Context, input RegisterVisitInput) (models.Visit, bool, error)
	GetVisit(ctx context.Context, visitID string) (models.Visit, error)
	ListVisits(ctx context.Context, day, status string) ([]models.Visit, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Visit, bool, error)
	CompleteVisit(ctx context.Context, input CompleteVisitInput) (models.Visit, bool, error)
	CurrentVisit(ctx context.Context, day string) (models.Visit, bool, error)
	CountWaitingAhead(ctx context.Context, day string, serialNumber int) (int, error)
	QueueStats(ctx context.Context, day string) (QueueStats, error)
	GetProfile(ctx context.Context) (models.Profile, error)
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.Profile, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	ListVisitEvents(ctx context.Context, visitID string) ([]VisitEvent, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
