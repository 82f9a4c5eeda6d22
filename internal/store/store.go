package store

import (
	"context"
	"time"

	"leadcapture/pkg/domain"
)

// Store defines persistence operations for questionnaires, sessions, uploads,
// and the read-mostly catalog data.
type Store interface {
	// questionnaires & questions
	ActiveQuestionnaire(ctx context.Context, kind domain.QuestionnaireKind) (domain.Questionnaire, bool, error)
	Questions(ctx context.Context, questionnaireID string) ([]domain.Question, error)

	// sessions
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, bool, error)
	// SaveSubmission persists all answers and marks the session completed in
	// one transaction. The completion update is conditional on the session not
	// being completed yet; it returns false when another submission won the
	// race, without writing anything.
	SaveSubmission(ctx context.Context, sessionID string, completedAt time.Time, answers []domain.SubmittedAnswer) (bool, error)

	// uploads
	GetProject(ctx context.Context, id string) (domain.Project, bool, error)
	CreateUploadSession(ctx context.Context, s domain.UploadSession) error
	GetUploadSession(ctx context.Context, id string) (domain.UploadSession, bool, error)
	// RecordUpload registers file metadata and bumps the session counters.
	// The counter update is conditional on the per-session limits; it returns
	// false when the file would exceed them.
	RecordUpload(ctx context.Context, file domain.UploadedFile, maxFiles int, maxTotalBytes int64) (bool, error)

	// catalog
	PricingPlans(ctx context.Context) ([]domain.PricingPlan, error)
	Projects(ctx context.Context) ([]domain.Project, error)
}
