// Package postgres stores meetings, attendance and the activity log in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"liveclass-backend/internal/domain"
)

// ErrMeetingNotFound is returned when no open meeting matches
var ErrMeetingNotFound = errors.New("meeting not found")

// MeetingRepository handles meeting, attendance and activity rows
type MeetingRepository struct {
	db      DBTX
	entries *EntryRepository
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(db DBTX) *MeetingRepository {
	return &MeetingRepository{
		db:      db,
		entries: NewEntryRepository(db),
	}
}

// StartMeeting inserts the meeting row
func (r *MeetingRepository) StartMeeting(ctx context.Context, session domain.MeetingSession) error {
	fields := Fields{
		"id":         session.ID,
		"room_id":    session.RoomID,
		"host_id":    session.HostID,
		"started_at": session.StartedAt,
	}
	if session.ClassID != "" {
		fields["class_id"] = session.ClassID
	}

	if err := r.entries.CreateEntry(ctx, "meetings", fields); err != nil {
		return fmt.Errorf("failed to start meeting: %w", err)
	}
	return nil
}

// EndMeeting stamps ended_at on the host's open meeting in roomID
func (r *MeetingRepository) EndMeeting(ctx context.Context, hostID, roomID string, endedAt time.Time) error {
	n, err := r.entries.UpdateEntry(ctx, "meetings",
		Fields{"ended_at": endedAt},
		Fields{"host_id": hostID, "room_id": roomID, "ended_at": nil})
	if err != nil {
		return fmt.Errorf("failed to end meeting: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to end meeting %s: %w", roomID, ErrMeetingNotFound)
	}
	return nil
}

// RecordAttendance marks a student present; repeated calls keep the first row
func (r *MeetingRepository) RecordAttendance(ctx context.Context, studentID, meetingID string) error {
	query := `
		INSERT INTO attendance (student_id, meeting_id, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (student_id, meeting_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, studentID, meetingID); err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}
	return nil
}

// LogActivity appends one entry to the activity log
func (r *MeetingRepository) LogActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	err := r.entries.CreateEntry(ctx, "activity_log", Fields{
		"id":         entry.ID,
		"actor_id":   entry.ActorID,
		"meeting_id": entry.MeetingID,
		"action":     string(entry.Action),
		"role":       string(entry.Role),
		"created_at": entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// UpdateHighWaterMark raises max_participants of the open meeting in roomID
func (r *MeetingRepository) UpdateHighWaterMark(ctx context.Context, roomID string, count int) error {
	query := `
		UPDATE meetings
		SET max_participants = GREATEST(max_participants, $2)
		WHERE room_id = $1 AND ended_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, roomID, count); err != nil {
		return fmt.Errorf("failed to update participant count: %w", err)
	}
	return nil
}

// GetOpenMeeting returns the meeting currently held in roomID
func (r *MeetingRepository) GetOpenMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error) {
	query := `
		SELECT id, room_id, host_id, COALESCE(class_id, ''), started_at, max_participants
		FROM meetings
		WHERE room_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	session := &domain.MeetingSession{}
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&session.ID,
		&session.RoomID,
		&session.HostID,
		&session.ClassID,
		&session.StartedAt,
		&session.HighWaterMark,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	return session, nil
}

// ListEnrolledStudents returns the ids of students enrolled in classID
func (r *MeetingRepository) ListEnrolledStudents(ctx context.Context, classID string) ([]string, error) {
	query := `
		SELECT student_id
		FROM enrollments
		WHERE class_id = $1
		ORDER BY student_id
	`

	rows, err := r.db.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrolled students: %w", err)
	}
	defer rows.Close()

	var students []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}

	return students, nil
}
