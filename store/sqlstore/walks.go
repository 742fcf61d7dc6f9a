package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// WALKS
// =============================================================================

const walkColumns = `id, dog_id, owner_id, walker_id, subscription_id, walk_date, time_slot,
	duration_seconds, status, pickup_status, notes, feedback, metrics_json, created_at, updated_at`

func (s *Store) InsertWalk(ctx context.Context, w walks.Walk) error {
	metrics, err := encodeMetrics(w.Metrics)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO walks (`+walkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(w.ID), string(w.DogID), string(w.OwnerID), string(w.WalkerID), string(w.SubscriptionID),
		w.Date.String(), string(w.TimeSlot), int64(w.Duration/time.Second),
		string(w.Status), string(w.PickupStatus), w.Notes, w.Feedback, metrics,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	return mapWriteErr("insert walk", err)
}

// UpdateWalk rewrites the mutable columns. Slot, dog and subscription are
// fixed at booking.
func (s *Store) UpdateWalk(ctx context.Context, w walks.Walk) error {
	metrics, err := encodeMetrics(w.Metrics)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE walks
		SET status = ?, pickup_status = ?, notes = ?, feedback = ?, metrics_json = ?, updated_at = ?
		WHERE id = ?`,
		string(w.Status), string(w.PickupStatus), w.Notes, w.Feedback, metrics,
		formatTime(w.UpdatedAt), string(w.ID),
	)
	if err != nil {
		return mapWriteErr("update walk", err)
	}
	return expectOne(res, "walk", w.ID)
}

func (s *Store) GetWalk(ctx context.Context, id walks.WalkID) (walks.Walk, error) {
	row := s.queryRow(ctx, `SELECT `+walkColumns+` FROM walks WHERE id = ?`, string(id))
	w, err := scanWalk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.Walk{}, walks.NewNotFound("walk", id)
	}
	return w, err
}

func (s *Store) ListWalks(ctx context.Context, f walks.WalkFilter) ([]walks.Walk, error) {
	var (
		where []string
		args  []any
	)
	if f.DogID != nil {
		where = append(where, "dog_id = ?")
		args = append(args, string(*f.DogID))
	}
	if f.WalkerID != nil {
		where = append(where, "walker_id = ?")
		args = append(args, string(*f.WalkerID))
	}
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, string(*f.OwnerID))
	}
	if f.Date != nil {
		where = append(where, "walk_date = ?")
		args = append(args, f.Date.String())
	}
	if f.Slot != nil {
		where = append(where, "time_slot = ?")
		args = append(args, string(*f.Slot))
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + walkColumns + ` FROM walks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list walks: %w", err)
	}
	defer rows.Close()

	var result []walks.Walk
	for rows.Next() {
		w, err := scanWalk(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func scanWalk(sc scanner) (walks.Walk, error) {
	var (
		w                           walks.Walk
		id, dog, owner, walker, sub string
		date, slot, status, pickup  string
		durationSeconds             int64
		metrics                     sql.NullString
		createdAt, updatedAt        string
	)
	if err := sc.Scan(&id, &dog, &owner, &walker, &sub, &date, &slot, &durationSeconds,
		&status, &pickup, &w.Notes, &w.Feedback, &metrics, &createdAt, &updatedAt); err != nil {
		return walks.Walk{}, err
	}
	w.ID, w.DogID, w.OwnerID = walks.WalkID(id), walks.DogID(dog), walks.OwnerID(owner)
	w.WalkerID, w.SubscriptionID = walks.WalkerID(walker), walks.SubscriptionID(sub)
	w.TimeSlot, w.Status, w.PickupStatus = walks.TimeSlot(slot), walks.WalkStatus(status), walks.PickupStatus(pickup)
	w.Duration = time.Duration(durationSeconds) * time.Second

	var err error
	if w.Date, err = walks.ParseDate(date); err != nil {
		return walks.Walk{}, err
	}
	if metrics.Valid {
		w.Metrics = &walks.WalkMetrics{}
		if err := json.Unmarshal([]byte(metrics.String), w.Metrics); err != nil {
			return walks.Walk{}, fmt.Errorf("corrupt metrics for walk %s: %w", id, err)
		}
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.Walk{}, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return walks.Walk{}, err
	}
	return w, nil
}

func encodeMetrics(m *walks.WalkMetrics) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metrics: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// =============================================================================
// ASSESSMENTS
// =============================================================================

const assessmentColumns = `id, dog_id, owner_id, status, result, assigned_walker_id,
	requested_date, scheduled_date, notes, created_at, updated_at`

func (s *Store) InsertAssessment(ctx context.Context, a walks.Assessment) error {
	_, err := s.exec(ctx, `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.DogID), string(a.OwnerID), string(a.Status),
		nullResult(a.Result), nullWalker(a.AssignedWalkerID),
		nullDate(&a.RequestedDate), nullDate(a.ScheduledDate), a.Notes,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if isOpenAssessmentViolation(err) {
		return fmt.Errorf("dog %s: %w", a.DogID, walks.ErrAssessmentOpen)
	}
	return mapWriteErr("insert assessment", err)
}

func (s *Store) UpdateAssessment(ctx context.Context, a walks.Assessment, from walks.AssessmentState) error {
	res, err := s.exec(ctx, `
		UPDATE assessments
		SET status = ?, result = ?, assigned_walker_id = ?, scheduled_date = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(a.Status), nullResult(a.Result), nullWalker(a.AssignedWalkerID),
		nullDate(a.ScheduledDate), a.Notes, formatTime(a.UpdatedAt), string(a.ID), string(from),
	)
	if err != nil {
		return mapWriteErr("update assessment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	current, err := s.GetAssessment(ctx, a.ID)
	if err != nil {
		return err
	}
	return &walks.TransitionError{Entity: "assessment", ID: string(a.ID),
		From: string(current.Status), To: string(a.Status), Reason: "status changed concurrently"}
}

func (s *Store) GetAssessment(ctx context.Context, id walks.AssessmentID) (walks.Assessment, error) {
	row := s.queryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, string(id))
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.Assessment{}, walks.NewNotFound("assessment", id)
	}
	return a, err
}

func (s *Store) ListAssessmentsByDog(ctx context.Context, dogID walks.DogID) ([]walks.Assessment, error) {
	rows, err := s.query(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE dog_id = ? ORDER BY created_at, id`,
		string(dogID))
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var result []walks.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAssessment(sc scanner) (walks.Assessment, error) {
	var (
		a                      walks.Assessment
		id, dog, owner, status string
		result, walker         sql.NullString
		requested, scheduled   sql.NullString
		createdAt, updatedAt   string
	)
	if err := sc.Scan(&id, &dog, &owner, &status, &result, &walker,
		&requested, &scheduled, &a.Notes, &createdAt, &updatedAt); err != nil {
		return walks.Assessment{}, err
	}
	a.ID, a.DogID, a.OwnerID = walks.AssessmentID(id), walks.DogID(dog), walks.OwnerID(owner)
	a.Status = walks.AssessmentState(status)
	if result.Valid {
		r := walks.AssessmentResult(result.String)
		a.Result = &r
	}
	if walker.Valid {
		w := walks.WalkerID(walker.String)
		a.AssignedWalkerID = &w
	}

	req, err := parseNullDate(requested)
	if err != nil {
		return walks.Assessment{}, err
	}
	if req != nil {
		a.RequestedDate = *req
	}
	if a.ScheduledDate, err = parseNullDate(scheduled); err != nil {
		return walks.Assessment{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.Assessment{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return walks.Assessment{}, err
	}
	return a, nil
}

func nullResult(r *walks.AssessmentResult) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return nullString(string(*r))
}

func nullWalker(w *walks.WalkerID) sql.NullString {
	if w == nil {
		return sql.NullString{}
	}
	return nullString(string(*w))
}
