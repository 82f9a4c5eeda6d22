package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadcapture/pkg/domain"
)

// MemoryStore keeps all rows in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu             sync.RWMutex
	questionnaires map[string]domain.Questionnaire
	questions      map[string][]domain.Question // questionnaireID -> questions
	sessions       map[string]domain.Session
	answers        map[string][]domain.SubmittedAnswer // sessionID -> answers
	projects       map[string]domain.Project
	projectOrder   []string
	uploadSessions map[string]domain.UploadSession
	uploadedFiles  map[string][]domain.UploadedFile // sessionID -> files
	pricing        []domain.PricingPlan
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questionnaires: make(map[string]domain.Questionnaire),
		questions:      make(map[string][]domain.Question),
		sessions:       make(map[string]domain.Session),
		answers:        make(map[string][]domain.SubmittedAnswer),
		projects:       make(map[string]domain.Project),
		uploadSessions: make(map[string]domain.UploadSession),
		uploadedFiles:  make(map[string][]domain.UploadedFile),
	}
}

// SeedQuestionnaire registers a questionnaire.
func (m *MemoryStore) SeedQuestionnaire(q domain.Questionnaire) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questionnaires[q.ID] = q
}

// SeedQuestion appends a question to its questionnaire.
func (m *MemoryStore) SeedQuestion(q domain.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.QuestionnaireID] = append(m.questions[q.QuestionnaireID], q)
}

// SeedProject registers a project.
func (m *MemoryStore) SeedProject(p domain.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[p.ID]; !exists {
		m.projectOrder = append(m.projectOrder, p.ID)
	}
	m.projects[p.ID] = p
}

// SeedPricingPlan appends a pricing plan.
func (m *MemoryStore) SeedPricingPlan(p domain.PricingPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricing = append(m.pricing, p)
}

// ActiveQuestionnaire returns the active questionnaire of the kind.
func (m *MemoryStore) ActiveQuestionnaire(_ context.Context, kind domain.QuestionnaireKind) (domain.Questionnaire, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.questionnaires {
		if q.Kind == kind && q.Active {
			return q, true, nil
		}
	}
	return domain.Questionnaire{}, false, nil
}

// Questions returns active questions sorted by display order, options sorted
// within each question.
func (m *MemoryStore) Questions(_ context.Context, questionnaireID string) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Question
	for _, q := range m.questions[questionnaireID] {
		if !q.Active {
			continue
		}
		q.Options = append([]domain.QuestionOption(nil), q.Options...)
		sort.SliceStable(q.Options, func(i, j int) bool {
			return q.Options[i].DisplayOrder < q.Options[j].DisplayOrder
		})
		res = append(res, q)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].DisplayOrder < res[j].DisplayOrder
	})
	return res, nil
}

// CreateSession stores a session.
func (m *MemoryStore) CreateSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// GetSession returns a session by ID.
func (m *MemoryStore) GetSession(_ context.Context, id string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

// SaveSubmission records answers and completes the session, first writer wins.
func (m *MemoryStore) SaveSubmission(_ context.Context, sessionID string, completedAt time.Time, answers []domain.SubmittedAnswer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.CompletedAt != nil {
		return false, nil
	}
	at := completedAt
	s.CompletedAt = &at
	m.sessions[sessionID] = s
	m.answers[sessionID] = append([]domain.SubmittedAnswer(nil), answers...)
	return true, nil
}

// Answers returns the persisted answers for a session.
func (m *MemoryStore) Answers(sessionID string) []domain.SubmittedAnswer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.SubmittedAnswer(nil), m.answers[sessionID]...)
}

// GetProject retrieves a project by ID.
func (m *MemoryStore) GetProject(_ context.Context, id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

// CreateUploadSession stores an upload session.
func (m *MemoryStore) CreateUploadSession(_ context.Context, s domain.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadSessions[s.ID] = s
	return nil
}

// GetUploadSession returns an upload session by ID.
func (m *MemoryStore) GetUploadSession(_ context.Context, id string) (domain.UploadSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.uploadSessions[id]
	return s, ok, nil
}

// RecordUpload bumps counters when the file fits the session limits.
func (m *MemoryStore) RecordUpload(_ context.Context, file domain.UploadedFile, maxFiles int, maxTotalBytes int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.uploadSessions[file.SessionID]
	if !ok {
		return false, nil
	}
	if s.FileCount >= maxFiles || s.TotalSizeBytes+file.SizeBytes > maxTotalBytes {
		return false, nil
	}
	s.FileCount++
	s.TotalSizeBytes += file.SizeBytes
	m.uploadSessions[file.SessionID] = s
	m.uploadedFiles[file.SessionID] = append(m.uploadedFiles[file.SessionID], file)
	return true, nil
}

// PricingPlans returns pricing plans sorted for display.
func (m *MemoryStore) PricingPlans(_ context.Context) ([]domain.PricingPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := append([]domain.PricingPlan(nil), m.pricing...)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].DisplayOrder < res[j].DisplayOrder
	})
	return res, nil
}

// Projects returns projects in seed order.
func (m *MemoryStore) Projects(_ context.Context) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0, len(m.projectOrder))
	for _, id := range m.projectOrder {
		if p, ok := m.projects[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}
