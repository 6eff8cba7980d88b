package store

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a non-persistent archive, used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu          sync.Mutex
	submissions []Submission
	quizResults []QuizResult
	mediaJobs   map[string]MediaJob
	jobOrder    []string
	nextID      int64
}

// NewInMemoryStore creates an empty in-memory archive.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		mediaJobs: make(map[string]MediaJob),
		nextID:    1,
	}
}

func (s *InMemoryStore) AddSubmission(sub Submission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.nextID
	s.nextID++
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.submissions = append(s.submissions, sub)
	return sub.ID, nil
}

func (s *InMemoryStore) GetSubmissions() ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out, nil
}

func (s *InMemoryStore) AddQuizResult(r QuizResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID
	s.nextID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.quizResults = append(s.quizResults, r)
	return r.ID, nil
}

func (s *InMemoryStore) GetQuizResults(groupID int64) ([]QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QuizResult
	for _, r := range s.quizResults {
		if groupID == 0 || r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddMediaJob(j MediaJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		return fmt.Errorf("media job missing id")
	}
	if _, exists := s.mediaJobs[j.ID]; exists {
		return fmt.Errorf("media job %s already exists", j.ID)
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	s.mediaJobs[j.ID] = j
	s.jobOrder = append(s.jobOrder, j.ID)
	return nil
}

func (s *InMemoryStore) UpdateMediaJob(id string, status JobStatus, lastError, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.mediaJobs[id]
	if !ok {
		return fmt.Errorf("media job %s not found", id)
	}
	j.Status = status
	j.LastError = lastError
	if outputPath != "" {
		j.OutputPath = outputPath
	}
	j.UpdatedAt = time.Now()
	s.mediaJobs[id] = j
	return nil
}

func (s *InMemoryStore) GetMediaJob(id string) (*MediaJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.mediaJobs[id]
	if !ok {
		return nil, nil
	}
	out := j
	return &out, nil
}

func (s *InMemoryStore) GetMediaJobs() ([]MediaJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MediaJob, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		out = append(out, s.mediaJobs[id])
	}
	return out, nil
}

// Close is a no-op for the in-memory archive.
func (s *InMemoryStore) Close() error {
	return nil
}
