package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// GetExpertise returns the stored blob for a (project, domain), or nil.
func (s *Store) GetExpertise(projectID, domain string) (*models.ExpertiseRecord, error) {
	row := s.QueryRow(`
		SELECT id, project_id, domain, content, version, updated_at
		FROM expertise_files WHERE project_id = ? AND domain = ?
	`, projectID, domain)
	var r models.ExpertiseRecord
	var updatedAt string
	err := row.Scan(&r.ID, &r.ProjectID, &r.Domain, &r.Content, &r.Version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expertise: %w", err)
	}
	r.UpdatedAt, _ = parseTime(updatedAt)
	return &r, nil
}

// SaveExpertise writes a new version of a domain blob and records the
// update against the session that produced it. Version increments
// monotonically inside the transaction.
func (s *Store) SaveExpertise(projectID, domain, content, sessionID, summary string) (*models.ExpertiseRecord, error) {
	now := time.Now()
	rec := &models.ExpertiseRecord{
		ProjectID: projectID,
		Domain:    domain,
		Content:   content,
		UpdatedAt: now,
	}
	err := s.Transaction(func(tx *sql.Tx) error {
		var id string
		var version int
		err := tx.QueryRow(
			"SELECT id, version FROM expertise_files WHERE project_id = ? AND domain = ?",
			projectID, domain,
		).Scan(&id, &version)
		switch {
		case err == sql.ErrNoRows:
			id = uuid.NewString()
			version = 1
			if _, err := tx.Exec(`
				INSERT INTO expertise_files (id, project_id, domain, content, version, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id, projectID, domain, content, version, formatTime(now)); err != nil {
				return fmt.Errorf("insert expertise: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load expertise: %w", err)
		default:
			version++
			if _, err := tx.Exec(`
				UPDATE expertise_files SET content = ?, version = ?, updated_at = ? WHERE id = ?
			`, content, version, formatTime(now), id); err != nil {
				return fmt.Errorf("update expertise: %w", err)
			}
		}

		var sid any
		if sessionID != "" {
			sid = sessionID
		}
		if _, err := tx.Exec(`
			INSERT INTO expertise_updates (id, expertise_id, session_id, version, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), id, sid, version, summary, formatTime(now)); err != nil {
			return fmt.Errorf("record expertise update: %w", err)
		}

		rec.ID = id
		rec.Version = version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListExpertise returns all domain blobs for a project.
func (s *Store) ListExpertise(projectID string) ([]*models.ExpertiseRecord, error) {
	rows, err := s.Query(`
		SELECT id, project_id, domain, content, version, updated_at
		FROM expertise_files WHERE project_id = ? ORDER BY domain
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list expertise: %w", err)
	}
	defer rows.Close()

	var records []*models.ExpertiseRecord
	for rows.Next() {
		var r models.ExpertiseRecord
		var updatedAt string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Domain, &r.Content, &r.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expertise: %w", err)
		}
		r.UpdatedAt, _ = parseTime(updatedAt)
		records = append(records, &r)
	}
	return records, rows.Err()
}
