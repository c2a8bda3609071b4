package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// ErrSessionRunning means a session could not start because a
// conflicting one is already running for the project. Coding sessions
// may run concurrently (each is isolated in its own worktree);
// initializer and review sessions are exclusive with everything.
var ErrSessionRunning = errors.New("a conflicting session is already running for this project")

const sessionColumns = `id, project_id, seq, task_id, type, model, status,
	created_at, started_at, last_heartbeat, ended_at, metrics,
	interruption_reason, error_message`

// CreateSession inserts a pending session, assigning the next per-project
// sequence number.
func (s *Store) CreateSession(sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = models.SessionPending
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	metrics, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("marshal session metrics: %w", err)
	}
	return s.Transaction(func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions WHERE project_id = ?",
			sess.ProjectID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("next session seq: %w", err)
		}
		sess.Seq = seq

		var taskID any
		if sess.TaskID != "" {
			taskID = sess.TaskID
		}
		if _, err := tx.Exec(`
			INSERT INTO sessions (id, project_id, seq, task_id, type, model, status,
				created_at, started_at, last_heartbeat, ended_at, metrics,
				interruption_reason, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, sess.ProjectID, sess.Seq, taskID, string(sess.Type), sess.Model,
			string(sess.Status), formatTime(sess.CreatedAt),
			formatNullableTime(sess.StartedAt), formatNullableTime(sess.LastHeartbeat),
			formatNullableTime(sess.EndedAt), string(metrics),
			sess.InterruptionReason, sess.ErrorMessage); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// StartSession transitions a pending session to running, enforcing
// session exclusivity inside a transaction: an initializer or review
// session blocks everything, and is blocked by anything running. Coding
// sessions only conflict with non-coding ones, so a parallel batch can
// run several at once.
func (s *Store) StartSession(id string, at time.Time) error {
	return s.Transaction(func(tx *sql.Tx) error {
		var projectID, sessType string
		if err := tx.QueryRow("SELECT project_id, type FROM sessions WHERE id = ?", id).Scan(&projectID, &sessType); err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		query := "SELECT COUNT(*) FROM sessions WHERE project_id = ? AND status = 'running' AND id != ?"
		if sessType == string(models.SessionCoding) {
			query += " AND type != 'coding'"
		}
		var blockers int
		if err := tx.QueryRow(query, projectID, id).Scan(&blockers); err != nil {
			return fmt.Errorf("count running sessions: %w", err)
		}
		if blockers > 0 {
			return ErrSessionRunning
		}
		ts := formatTime(at)
		res, err := tx.Exec(`
			UPDATE sessions SET status = 'running', started_at = ?, last_heartbeat = ?
			WHERE id = ? AND status = 'pending'
		`, ts, ts, id)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("start session: session %s is not pending", id)
		}
		return nil
	})
}

// Heartbeat advances last_heartbeat for a running session. The timestamp
// only moves forward.
func (s *Store) Heartbeat(id string, at time.Time) error {
	_, err := s.Exec(`
		UPDATE sessions SET last_heartbeat = ?
		WHERE id = ? AND status = 'running'
		  AND (last_heartbeat IS NULL OR last_heartbeat < ?)
	`, formatTime(at), id, formatTime(at))
	if err != nil {
		return fmt.Errorf("heartbeat session: %w", err)
	}
	return nil
}

// CompleteSession closes a session successfully with its final metrics.
func (s *Store) CompleteSession(id string, at time.Time, metrics models.SessionMetrics) error {
	return s.endSession(id, models.SessionCompleted, at, metrics, "", "")
}

// FailSession closes a session with an error message.
func (s *Store) FailSession(id string, at time.Time, metrics models.SessionMetrics, errMsg string) error {
	return s.endSession(id, models.SessionError, at, metrics, "", errMsg)
}

// InterruptSession closes a session as interrupted (cancellation or
// reaping), never as an error.
func (s *Store) InterruptSession(id string, at time.Time, reason string) error {
	res, err := s.Exec(`
		UPDATE sessions SET status = 'interrupted', ended_at = ?, interruption_reason = ?
		WHERE id = ? AND status IN ('pending', 'running')
	`, formatTime(at), reason, id)
	if err != nil {
		return fmt.Errorf("interrupt session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("interrupt session: session %s is not active", id)
	}
	return nil
}

func (s *Store) endSession(id string, status models.SessionStatus, at time.Time, metrics models.SessionMetrics, reason, errMsg string) error {
	blob, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal session metrics: %w", err)
	}
	res, err := s.Exec(`
		UPDATE sessions SET status = ?, ended_at = ?, metrics = ?,
			interruption_reason = ?, error_message = ?
		WHERE id = ? AND status IN ('pending', 'running')
	`, string(status), formatTime(at), string(blob), reason, errMsg, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("end session: session %s is not active", id)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var sess models.Session
	var taskID sql.NullString
	var createdAt, metrics string
	var startedAt, lastHeartbeat, endedAt sql.NullString
	var typ, status string
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Seq, &taskID, &typ, &sess.Model,
		&status, &createdAt, &startedAt, &lastHeartbeat, &endedAt, &metrics,
		&sess.InterruptionReason, &sess.ErrorMessage); err != nil {
		return nil, err
	}
	sess.TaskID = taskID.String
	sess.Type = models.SessionType(typ)
	sess.Status = models.SessionStatus(status)
	sess.CreatedAt, _ = parseTime(createdAt)
	sess.StartedAt = parseNullableTime(startedAt)
	sess.LastHeartbeat = parseNullableTime(lastHeartbeat)
	sess.EndedAt = parseNullableTime(endedAt)
	if err := json.Unmarshal([]byte(metrics), &sess.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal session metrics: %w", err)
	}
	return &sess, nil
}

// GetSession retrieves a session by id. Returns nil when not found.
func (s *Store) GetSession(id string) (*models.Session, error) {
	row := s.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a project's sessions, newest first. A nil status
// filter returns everything.
func (s *Store) ListSessions(projectID string, status *models.SessionStatus) ([]*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE project_id = ?"
	args := []any{projectID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY seq DESC"

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RunningSession returns the project's running session, or nil.
func (s *Store) RunningSession(projectID string) (*models.Session, error) {
	status := models.SessionRunning
	sessions, err := s.ListSessions(projectID, &status)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}
