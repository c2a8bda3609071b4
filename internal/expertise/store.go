// Package expertise accumulates per-domain knowledge across agent
// sessions. Each (project, domain) pair owns a YAML document of observed
// patterns, techniques, and failures that gets injected into later
// prompts for the same domain.
package expertise

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Document caps. The line budget bounds how much prompt space a domain
// blob may consume; entry caps keep each section focused on the recent
// past.
const (
	maxLines      = 1000
	maxPatterns   = 20
	maxTechniques = 15
	maxFailures   = 10
)

// Backend is the persistence surface the store needs.
type Backend interface {
	GetExpertise(projectID, domain string) (*models.ExpertiseRecord, error)
	SaveExpertise(projectID, domain, content, sessionID, summary string) (*models.ExpertiseRecord, error)
}

// Note is one recorded observation.
type Note struct {
	Summary    string    `yaml:"summary"`
	TaskID     string    `yaml:"task_id,omitempty"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

// Document is the YAML shape of a domain blob.
type Document struct {
	Domain     string `yaml:"domain"`
	Patterns   []Note `yaml:"patterns,omitempty"`
	Techniques []Note `yaml:"techniques,omitempty"`
	Failures   []Note `yaml:"failures,omitempty"`
}

// Observation is what a finished session reports about a task.
type Observation struct {
	Success bool
	// Summary is a one-line description of what worked or went wrong.
	Summary string
	// Technique optionally names a reusable approach discovered.
	Technique string
}

// Store reads and updates expertise blobs for one project. Safe for
// concurrent use.
type Store struct {
	projectID string
	backend   Backend
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewStore builds a Store bound to one project.
func NewStore(projectID string, backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{projectID: projectID, backend: backend, logger: logger}
}

// Get returns the rendered blob for a domain, empty when no expertise
// has been recorded yet.
func (s *Store) Get(domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.backend.GetExpertise(s.projectID, domain)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.Content, nil
}

// Observe folds a session's outcome for a task into the blob for the
// task's domain, pruning to stay inside the entry and line budgets.
func (s *Store) Observe(sessionID string, task *models.Task, obs Observation) error {
	if obs.Summary == "" && obs.Technique == "" {
		return nil
	}
	domain := Classify(task)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := Document{Domain: domain}
	rec, err := s.backend.GetExpertise(s.projectID, domain)
	if err != nil {
		return err
	}
	if rec != nil && rec.Content != "" {
		if err := yaml.Unmarshal([]byte(rec.Content), &doc); err != nil {
			// A corrupt blob starts over rather than poisoning future
			// sessions.
			s.logger.Warn("discarding unparseable expertise blob",
				zap.String("domain", domain), zap.Error(err))
			doc = Document{Domain: domain}
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	if obs.Summary != "" {
		note := Note{Summary: obs.Summary, TaskID: task.ID, RecordedAt: now}
		if obs.Success {
			doc.Patterns = append(doc.Patterns, note)
		} else {
			doc.Failures = append(doc.Failures, note)
		}
	}
	if obs.Technique != "" {
		doc.Techniques = append(doc.Techniques, Note{
			Summary: obs.Technique, TaskID: task.ID, RecordedAt: now,
		})
	}

	content, err := render(&doc)
	if err != nil {
		return err
	}
	summary := obs.Summary
	if summary == "" {
		summary = obs.Technique
	}
	saved, err := s.backend.SaveExpertise(s.projectID, domain, content, sessionID, summary)
	if err != nil {
		return err
	}
	s.logger.Debug("expertise updated",
		zap.String("domain", domain),
		zap.Int("version", saved.Version),
		zap.Bool("success", obs.Success))
	return nil
}

// render prunes the document to its caps and serializes it. Oldest
// failures go first when the line budget is exceeded, then oldest
// patterns, then oldest techniques.
func render(doc *Document) (string, error) {
	doc.Patterns = tail(doc.Patterns, maxPatterns)
	doc.Techniques = tail(doc.Techniques, maxTechniques)
	doc.Failures = tail(doc.Failures, maxFailures)

	for {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("marshal expertise document: %w", err)
		}
		if strings.Count(string(out), "\n") <= maxLines {
			return string(out), nil
		}
		switch {
		case len(doc.Failures) > 0:
			doc.Failures = doc.Failures[1:]
		case len(doc.Patterns) > 0:
			doc.Patterns = doc.Patterns[1:]
		case len(doc.Techniques) > 0:
			doc.Techniques = doc.Techniques[1:]
		default:
			return string(out), nil
		}
	}
}

func tail(notes []Note, n int) []Note {
	if len(notes) <= n {
		return notes
	}
	return notes[len(notes)-n:]
}
