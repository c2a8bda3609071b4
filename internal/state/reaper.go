package state

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// ReapStale scans a project's running sessions and interrupts any whose
// last heartbeat is older than the per-type staleness threshold. Sessions
// that never heartbeated are judged from their start time. The sweep is
// idempotent; it returns the sessions it reaped.
func (s *Store) ReapStale(projectID string, now time.Time, logger *zap.Logger) ([]*models.Session, error) {
	status := models.SessionRunning
	running, err := s.ListSessions(projectID, &status)
	if err != nil {
		return nil, fmt.Errorf("reap stale sessions: %w", err)
	}

	var reaped []*models.Session
	for _, sess := range running {
		last := sess.LastHeartbeat
		if last == nil {
			last = sess.StartedAt
		}
		if last == nil {
			// Running with no start timestamp is a corrupt row; treat
			// creation time as the reference point.
			t := sess.CreatedAt
			last = &t
		}
		threshold := sess.Type.StaleThreshold()
		age := now.Sub(*last)
		if age <= threshold {
			continue
		}
		reason := fmt.Sprintf("stale: no heartbeat for %s (threshold %s)",
			age.Round(time.Second), threshold)
		if err := s.InterruptSession(sess.ID, now, reason); err != nil {
			// Another sweep may have closed it between the list and the
			// update; skip rather than fail the whole pass.
			if logger != nil {
				logger.Warn("failed to reap session",
					zap.String("session_id", sess.ID),
					zap.Error(err))
			}
			continue
		}
		if logger != nil {
			logger.Info("reaped stale session",
				zap.String("session_id", sess.ID),
				zap.String("type", string(sess.Type)),
				zap.Duration("age", age),
				zap.Duration("threshold", threshold))
		}
		sess.Status = models.SessionInterrupted
		sess.InterruptionReason = reason
		reaped = append(reaped, sess)
	}
	return reaped, nil
}
