package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
)

// VisitEvent is one link in a visit's hash-chained audit log. Each event
// embeds the hash of its predecessor, so the history of a visit cannot be
// rewritten without breaking the chain.
type VisitEvent struct {
	VisitID   string          `json:"visit_id"`
	VisitSeq  int             `json:"visit_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	VisitID      string     `json:"visit_id"`
	Name         string     `json:"name"`
	Contact      string     `json:"contact"`
	SerialNumber int        `json:"serial_number"`
	Status       string     `json:"status"`
	Day          string     `json:"day"`
	CreatedAt    *time.Time `json:"created_at"`
	CalledAt     *time.Time `json:"called_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func ComputeVisitEventHash(prevHash, visitID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, visitID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// RehydrateVisit folds an event chain back into the visit's latest state.
func RehydrateVisit(events []VisitEvent) (models.Visit, error) {
	var visit models.Visit
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Visit{}, err
		}
		if payload.VisitID != "" {
			visit.VisitID = payload.VisitID
		}
		if payload.Name != "" {
			visit.Name = payload.Name
		}
		if payload.Contact != "" {
			visit.Contact = payload.Contact
		}
		if payload.SerialNumber != 0 {
			visit.SerialNumber = payload.SerialNumber
		}
		if payload.Status != "" {
			visit.Status = payload.Status
		}
		if payload.Day != "" {
			visit.Day = payload.Day
		}
		if payload.CreatedAt != nil {
			visit.CreatedAt = *payload.CreatedAt
		}
		if payload.CalledAt != nil {
			visit.CalledAt = payload.CalledAt
		}
		if payload.CompletedAt != nil {
			visit.CompletedAt = payload.CompletedAt
		}
	}
	return visit, nil
}
