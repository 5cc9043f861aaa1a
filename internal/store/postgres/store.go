package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/models"
	"github.com/Drax929/orderly-patient-nexus/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool           *pgxpool.Pool
	loc            *time.Location
	defaultProfile models.Profile
}

type Options struct {
	// Location is the clinic timezone used for all day scoping.
	Location *time.Location
	// DefaultProfile seeds the clinic_profile row when none exists yet.
	DefaultProfile models.Profile
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	profile := options.DefaultProfile
	if profile.AvgConsultationMinutes <= 0 {
		profile.AvgConsultationMinutes = 15
	}
	return &Store{
		pool:           pool,
		loc:            loc,
		defaultProfile: profile,
	}
}

func (s *Store) RegisterVisit(ctx context.Context, input store.RegisterVisitInput) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findVisitByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		return existing, false, nil
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	day := models.DayOf(createdAt, s.loc)

	serial, err := nextSerialNumber(ctx, tx, day)
	if err != nil {
		return models.Visit{}, false, err
	}

	visitID := uuid.NewString()
	var visit models.Visit
	row := tx.QueryRow(ctx, `
		INSERT INTO visits (
			visit_id, request_id, name, contact, serial_number, status, day, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING visit_id, request_id, name, contact, serial_number, status, day::text, created_at
	`, visitID, input.RequestID, input.Name, input.Contact, serial, models.StatusWaiting, day, createdAt)
	if err = row.Scan(&visit.VisitID, &visit.RequestID, &visit.Name, &visit.Contact, &visit.SerialNumber, &visit.Status, &visit.Day, &visit.CreatedAt); err != nil {
		return models.Visit{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "visit.registered", visit); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}

	return visit, true, nil
}

func (s *Store) GetVisit(ctx context.Context, visitID string) (models.Visit, error) {
	row := s.pool.QueryRow(ctx, visitColumns+` WHERE visit_id = $1`, visitID)
	visit, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, store.ErrVisitNotFound
		}
		return models.Visit{}, err
	}
	return visit, nil
}

func (s *Store) ListVisits(ctx context.Context, day, status string) ([]models.Visit, error) {
	query := visitColumns + ` WHERE day = $1`
	args := []interface{}{day}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY serial_number ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return visits, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		if empty {
			return models.Visit{}, false, store.ErrNoWaitingVisits
		}
		return existing, false, nil
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	day := models.DayOf(calledAt, s.loc)

	// Serialize call-next per clinic day so the single in_progress slot
	// cannot be claimed twice.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "call_next:"+day); err != nil {
		return models.Visit{}, false, err
	}

	var busy bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM visits WHERE day = $1 AND status = $2
		)
	`, day, models.StatusInProgress)
	if err = row.Scan(&busy); err != nil {
		return models.Visit{}, false, err
	}
	if busy {
		err = store.ErrAlreadyInProgress
		return models.Visit{}, false, err
	}

	var visit models.Visit
	row = tx.QueryRow(ctx, `
		WITH next_visit AS (
			SELECT visit_id
			FROM visits
			WHERE day = $1 AND status = $2
			ORDER BY serial_number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE visits
		SET status = $3,
			called_at = $4
		FROM next_visit
		WHERE visits.visit_id = next_visit.visit_id
		RETURNING visits.visit_id, visits.request_id, visits.name, visits.contact, visits.serial_number, visits.status, visits.day::text, visits.created_at, visits.called_at, visits.completed_at
	`, day, models.StatusWaiting, models.StatusInProgress, calledAt)
	if err = scanVisitFull(row, &visit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ""); err != nil {
				return models.Visit{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Visit{}, false, err
			}
			return models.Visit{}, false, store.ErrNoWaitingVisits
		}
		return models.Visit{}, false, err
	}

	visit.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, visit.VisitID); err != nil {
		return models.Visit{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "visit.called", visit); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}

	return visit, true, nil
}

func (s *Store) CompleteVisit(ctx context.Context, input store.CompleteVisitInput) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "complete", input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		if empty {
			return models.Visit{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	var visit models.Visit
	row := tx.QueryRow(ctx, `
		UPDATE visits
		SET status = $1,
			completed_at = $2
		WHERE visit_id = $3 AND status = $4
		RETURNING visit_id, request_id, name, contact, serial_number, status, day::text, created_at, called_at, completed_at
	`, models.StatusCompleted, completedAt, input.VisitID, models.StatusInProgress)
	if err = scanVisitFull(row, &visit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			checkRow := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM visits WHERE visit_id = $1)`, input.VisitID)
			if err = checkRow.Scan(&exists); err != nil {
				return models.Visit{}, false, err
			}
			if !exists {
				err = store.ErrVisitNotFound
				return models.Visit{}, false, err
			}
			err = store.ErrInvalidState
			return models.Visit{}, false, err
		}
		return models.Visit{}, false, err
	}

	visit.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "complete", input.RequestID, visit.VisitID); err != nil {
		return models.Visit{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "visit.completed", visit); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}

	return visit, true, nil
}

func (s *Store) CurrentVisit(ctx context.Context, day string) (models.Visit, bool, error) {
	row := s.pool.QueryRow(ctx, visitColumns+`
		WHERE day = $1 AND status = $2
		ORDER BY called_at DESC
		LIMIT 1
	`, day, models.StatusInProgress)
	var visit models.Visit
	if err := scanVisitFull(row, &visit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, false, nil
		}
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

func (s *Store) CountWaitingAhead(ctx context.Context, day string, serialNumber int) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM visits
		WHERE day = $1 AND status = $2 AND serial_number < $3
	`, day, models.StatusWaiting, serialNumber)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) QueueStats(ctx context.Context, day string) (store.QueueStats, error) {
	stats := store.QueueStats{Day: day}
	var total int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(1),
			COUNT(1) FILTER (WHERE status = $2),
			COUNT(1) FILTER (WHERE status = $3),
			COUNT(1) FILTER (WHERE status = $4)
		FROM visits
		WHERE day = $1
	`, day, models.StatusWaiting, models.StatusInProgress, models.StatusCompleted)
	if err := row.Scan(&total, &stats.WaitingCount, &stats.InProgressCount, &stats.CompletedCount); err != nil {
		return store.QueueStats{}, err
	}
	stats.NextSerial = total + 1
	return stats, nil
}

func (s *Store) GetProfile(ctx context.Context) (models.Profile, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Profile{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	profile, err := ensureProfile(ctx, tx, s.defaultProfile)
	if err != nil {
		return models.Profile{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.Profile, error) {
	if update.AvgConsultationMinutes != nil && *update.AvgConsultationMinutes <= 0 {
		return models.Profile{}, store.ErrInvalidProfile
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Profile{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	profile, err := ensureProfile(ctx, tx, s.defaultProfile)
	if err != nil {
		return models.Profile{}, err
	}

	if update.DoctorName != nil {
		profile.DoctorName = *update.DoctorName
	}
	if update.ClinicName != nil {
		profile.ClinicName = *update.ClinicName
	}
	if update.Morning != nil {
		profile.Morning = update.Morning
	}
	if update.Evening != nil {
		profile.Evening = update.Evening
	}
	if update.AvgConsultationMinutes != nil {
		profile.AvgConsultationMinutes = *update.AvgConsultationMinutes
	}

	_, err = tx.Exec(ctx, `
		UPDATE clinic_profile
		SET doctor_name = $1,
			clinic_name = $2,
			morning_start = $3,
			morning_end = $4,
			evening_start = $5,
			evening_end = $6,
			avg_consultation_minutes = $7
		WHERE profile_id = 1
	`, profile.DoctorName, profile.ClinicName,
		windowStart(profile.Morning), windowEnd(profile.Morning),
		windowStart(profile.Evening), windowEnd(profile.Evening),
		profile.AvgConsultationMinutes)
	if err != nil {
		return models.Profile{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListVisitEvents(ctx context.Context, visitID string) ([]store.VisitEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT visit_id, visit_seq, type, payload, created_at, prev_hash, hash
		FROM visit_events
		WHERE visit_id = $1
		ORDER BY visit_seq ASC
	`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.VisitEvent
	for rows.Next() {
		var event store.VisitEvent
		if err := rows.Scan(&event.VisitID, &event.VisitSeq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

const visitColumns = `
	SELECT visit_id, request_id, name, contact, serial_number, status, day::text, created_at, called_at, completed_at
	FROM visits`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisit(row rowScanner) (models.Visit, error) {
	var visit models.Visit
	if err := scanVisitFull(row, &visit); err != nil {
		return models.Visit{}, err
	}
	return visit, nil
}

func scanVisitFull(row rowScanner, visit *models.Visit) error {
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	if err := row.Scan(&visit.VisitID, &visit.RequestID, &visit.Name, &visit.Contact, &visit.SerialNumber, &visit.Status, &visit.Day, &visit.CreatedAt, &calledAtNull, &completedAtNull); err != nil {
		return err
	}
	visit.CalledAt = nullTimePtr(calledAtNull)
	visit.CompletedAt = nullTimePtr(completedAtNull)
	return nil
}

// nextSerialNumber hands out the day's next serial atomically. The upsert
// takes a row lock on the day's counter, so two same-day registrations can
// never read the same value; the unique index on (day, serial_number)
// backstops it.
func nextSerialNumber(ctx context.Context, tx pgx.Tx, day string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO visit_sequences (day, next_number)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET next_number = visit_sequences.next_number + 1
		RETURNING next_number
	`, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func ensureProfile(ctx context.Context, tx pgx.Tx, fallback models.Profile) (models.Profile, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO clinic_profile (
			profile_id, doctor_name, clinic_name, morning_start, morning_end, evening_start, evening_end, avg_consultation_minutes
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (profile_id) DO NOTHING
	`, fallback.DoctorName, fallback.ClinicName,
		windowStart(fallback.Morning), windowEnd(fallback.Morning),
		windowStart(fallback.Evening), windowEnd(fallback.Evening),
		fallback.AvgConsultationMinutes)
	if err != nil {
		return models.Profile{}, err
	}

	var profile models.Profile
	var morningStart, morningEnd, eveningStart, eveningEnd sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT doctor_name, clinic_name, morning_start, morning_end, evening_start, evening_end, avg_consultation_minutes
		FROM clinic_profile
		WHERE profile_id = 1
		FOR UPDATE
	`)
	if err := row.Scan(&profile.DoctorName, &profile.ClinicName, &morningStart, &morningEnd, &eveningStart, &eveningEnd, &profile.AvgConsultationMinutes); err != nil {
		return models.Profile{}, err
	}
	profile.Morning = windowFromNull(morningStart, morningEnd)
	profile.Evening = windowFromNull(eveningStart, eveningEnd)
	return profile, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, visit models.Visit) error {
	payload := map[string]interface{}{
		"visit_id":      visit.VisitID,
		"name":          visit.Name,
		"contact":       visit.Contact,
		"serial_number": visit.SerialNumber,
		"status":        visit.Status,
		"day":           visit.Day,
		"created_at":    visit.CreatedAt,
		"request_id":    visit.RequestID,
	}
	if visit.CalledAt != nil {
		payload["called_at"] = visit.CalledAt
	}
	if visit.CompletedAt != nil {
		payload["completed_at"] = visit.CompletedAt
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	if err != nil {
		return err
	}
	return insertVisitEvent(ctx, tx, visit.VisitID, eventType, payloadJSON)
}

func insertVisitEvent(ctx context.Context, tx pgx.Tx, visitID, eventType string, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, visitID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT visit_seq, hash
		FROM visit_events
		WHERE visit_id = $1
		ORDER BY visit_seq DESC
		LIMIT 1
		FOR UPDATE
	`, visitID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	// Postgres stores timestamps at microsecond precision; truncate here so
	// a hash recomputed from the stored row matches.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeVisitEventHash(prev, visitID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO visit_events (visit_id, visit_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, visitID, nextSeq, eventType, payload, createdAt, prev, hash)
	return err
}

func findVisitByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Visit, bool, error) {
	row := tx.QueryRow(ctx, visitColumns+` WHERE request_id = $1`, requestID)
	var visit models.Visit
	if err := scanVisitFull(row, &visit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, false, nil
		}
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Visit, bool, bool, error) {
	var visitID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT visit_id
		FROM action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&visitID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, false, false, nil
		}
		return models.Visit{}, false, false, err
	}

	if !visitID.Valid {
		return models.Visit{}, true, true, nil
	}

	row = tx.QueryRow(ctx, visitColumns+` WHERE visit_id = $1`, visitID.String)
	var visit models.Visit
	if err := scanVisitFull(row, &visit); err != nil {
		return models.Visit{}, false, false, err
	}
	visit.RequestID = requestID
	return visit, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, visitID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, visit_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, nullIfEmpty(visitID))
	return err
}

func windowStart(window *models.ScheduleWindow) interface{} {
	if window == nil {
		return nil
	}
	return window.Start
}

func windowEnd(window *models.ScheduleWindow) interface{} {
	if window == nil {
		return nil
	}
	return window.End
}

func windowFromNull(start, end sql.NullString) *models.ScheduleWindow {
	if !start.Valid || !end.Valid || start.String == "" || end.String == "" {
		return nil
	}
	return &models.ScheduleWindow{Start: start.String, End: end.String}
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
