// Package app implements the application core: session issuance and
// validation, answer submission, upload sessions, and the cached catalog
// reads.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadcapture/internal/answers"
	"leadcapture/internal/cache"
	"leadcapture/internal/csrf"
	"leadcapture/internal/ratelimit"
	"leadcapture/internal/sanitize"
	"leadcapture/internal/storage"
	"leadcapture/internal/store"
	"leadcapture/pkg/domain"
)

const (
	// SessionTTL bounds form/survey sessions.
	SessionTTL = 48 * time.Hour
	// UploadSessionTTL bounds upload sessions.
	UploadSessionTTL = 24 * time.Hour
	// MaxFilesPerSession caps files per upload session.
	MaxFilesPerSession = 20
	// MaxSessionBytes caps total upload size per session.
	MaxSessionBytes = 100 << 20
	// MaxFileBytes caps a single uploaded file.
	MaxFileBytes = 5 << 20
)

// allowedUploadMimes is the upload MIME allow-list.
var allowedUploadMimes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/gif":       {},
	"application/pdf": {},
	"application/zip": {},
}

// Config wires the collaborators of the application core.
type Config struct {
	Store         store.Store
	Cache         *cache.Cache
	UploadLimiter *ratelimit.FixedWindowLimiter
	Objects       storage.ObjectStore
	CatalogTTL    time.Duration
	// Now is the clock; defaults to time.Now. Injectable for tests.
	Now func() time.Time
}

// App orchestrates sessions, submissions, uploads and catalog reads.
type App struct {
	store         store.Store
	cache         *cache.Cache
	uploadLimiter *ratelimit.FixedWindowLimiter
	objects       storage.ObjectStore
	catalogTTL    time.Duration
	now           func() time.Time
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("app requires a store")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	catalogTTL := cfg.CatalogTTL
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}
	return &App{
		store:         cfg.Store,
		cache:         cfg.Cache,
		uploadLimiter: cfg.UploadLimiter,
		objects:       cfg.Objects,
		catalogTTL:    catalogTTL,
		now:           now,
	}, nil
}

// CreateSession issues a session for the active questionnaire of the given
// kind, binding a fresh CSRF token and a 48 hour expiry.
func (a *App) CreateSession(ctx context.Context, kind domain.QuestionnaireKind, locale domain.Locale) (domain.Session, error) {
	questionnaire, found, err := a.store.ActiveQuestionnaire(ctx, kind)
	if err != nil {
		return domain.Session{}, fmt.Errorf("lookup active questionnaire: %w", err)
	}
	if !found {
		return domain.Session{}, ErrNoActiveQuestionnaire
	}
	now := a.now().UTC()
	session := domain.Session{
		ID:              uuid.NewString(),
		QuestionnaireID: questionnaire.ID,
		Kind:            kind,
		Locale:          locale,
		CSRFToken:       csrf.NewToken(),
		StartedAt:       now,
		ExpiresAt:       now.Add(SessionTTL),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return session, nil
}

// Questions returns the active question set for a session, localized and
// ordered for display. Completed and expired sessions are rejected; the
// session is returned alongside the error so callers can report its state.
func (a *App) Questions(ctx context.Context, sessionID string, locale domain.Locale) ([]domain.Question, domain.Session, error) {
	session, err := a.activeSession(ctx, sessionID)
	if err != nil {
		return nil, session, err
	}
	if locale == "" {
		locale = session.Locale
	}
	questions, err := a.store.Questions(ctx, session.QuestionnaireID)
	if err != nil {
		return nil, session, fmt.Errorf("load questions: %w", err)
	}
	for i := range questions {
		localizeQuestion(&questions[i], locale)
	}
	return questions, session, nil
}

// SubmitAnswers sanitizes and validates all answers, then persists them and
// marks the session completed in one all-or-nothing write. A concurrent
// duplicate submission loses the completion race and reports
// ErrSessionCompleted.
func (a *App) SubmitAnswers(ctx context.Context, sessionID string, submitted []domain.SubmittedAnswer) error {
	session, err := a.activeSession(ctx, sessionID)
	if err != nil {
		return err
	}
	questions, err := a.store.Questions(ctx, session.QuestionnaireID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	values := make(map[string]domain.AnswerValue, len(submitted))
	cleaned := make([]domain.SubmittedAnswer, 0, len(submitted))
	for _, ans := range submitted {
		ans.Value = sanitizeValue(ans.Value)
		values[ans.QuestionID] = ans.Value
		cleaned = append(cleaned, ans)
	}

	if errs := answers.ValidateAll(questions, values); len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}

	won, err := a.store.SaveSubmission(ctx, sessionID, a.now().UTC(), cleaned)
	if err != nil {
		return fmt.Errorf("persist submission: %w", err)
	}
	if !won {
		return ErrSessionCompleted
	}
	return nil
}

// CreateUploadSession authenticates against the project upload password and
// issues a 24 hour upload session. Attempts are rate limited per client IP
// before the password is checked.
func (a *App) CreateUploadSession(ctx context.Context, projectID, password, clientIP string) (domain.UploadSession, domain.Project, error) {
	if a.uploadLimiter != nil && !a.uploadLimiter.Allow(ctx, clientIP) {
		return domain.UploadSession{}, domain.Project{}, ErrRateLimited
	}
	project, found, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return domain.UploadSession{}, domain.Project{}, fmt.Errorf("lookup project: %w", err)
	}
	if !found {
		return domain.UploadSession{}, domain.Project{}, ErrProjectNotFound
	}
	if !project.UploadsEnabled {
		return domain.UploadSession{}, domain.Project{}, ErrUploadsDisabled
	}
	// Plain equality against the stored password, matching the legacy
	// behavior. Known weakness; see DESIGN.md.
	if project.UploadPassword == "" || password != project.UploadPassword {
		return domain.UploadSession{}, domain.Project{}, ErrBadPassword
	}
	now := a.now().UTC()
	session := domain.UploadSession{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		CSRFToken: csrf.NewToken(),
		StartedAt: now,
		ExpiresAt: now.Add(UploadSessionTTL),
	}
	if err := a.store.CreateUploadSession(ctx, session); err != nil {
		return domain.UploadSession{}, domain.Project{}, fmt.Errorf("persist upload session: %w", err)
	}
	return session, project, nil
}

// UploadSession returns an upload session, rejecting unknown and expired ones.
func (a *App) UploadSession(ctx context.Context, sessionID string) (domain.UploadSession, error) {
	session, found, err := a.store.GetUploadSession(ctx, sessionID)
	if err != nil {
		return domain.UploadSession{}, fmt.Errorf("lookup upload session: %w", err)
	}
	if !found {
		return domain.UploadSession{}, ErrSessionNotFound
	}
	if session.Expired(a.now().UTC()) {
		return session, ErrSessionExpired
	}
	return session, nil
}

// SaveUpload enforces the per-file and per-session limits, stores the bytes,
// and records file metadata against the session.
func (a *App) SaveUpload(ctx context.Context, sessionID, filename, mimeType string, size int64, r io.Reader) (domain.UploadedFile, error) {
	session, err := a.UploadSession(ctx, sessionID)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if size <= 0 || size > MaxFileBytes {
		return domain.UploadedFile{}, ErrFileTooLarge
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if _, ok := allowedUploadMimes[mimeType]; !ok {
		return domain.UploadedFile{}, ErrMimeNotAllowed
	}

	now := a.now().UTC()
	file := domain.UploadedFile{
		ID:        store.NewID(),
		SessionID: session.ID,
		ProjectID: session.ProjectID,
		FileName:  safeFilename(filename),
		SizeBytes: size,
		MimeType:  mimeType,
		CreatedAt: now,
	}
	key := session.ID + "/" + file.ID + "-" + file.FileName

	if err := a.objects.Put(ctx, key, io.LimitReader(r, MaxFileBytes), size, mimeType); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("store upload: %w", err)
	}
	url, err := a.objects.URL(ctx, key)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("resolve upload url: %w", err)
	}
	file.URL = url

	accepted, err := a.store.RecordUpload(ctx, file, MaxFilesPerSession, MaxSessionBytes)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("record upload: %w", err)
	}
	if !accepted {
		// Roll the stored object back; the metadata row was never written.
		_ = a.objects.Delete(ctx, key)
		return domain.UploadedFile{}, ErrSessionQuotaExceeded
	}
	return file, nil
}

// Pricing returns the localized pricing catalog through the response cache.
func (a *App) Pricing(ctx context.Context, locale domain.Locale) (json.RawMessage, error) {
	return a.catalog(ctx, "pricing", locale, func(ctx context.Context) (any, error) {
		plans, err := a.store.PricingPlans(ctx)
		if err != nil {
			return nil, err
		}
		for i := range plans {
			plans[i].ResolvedName = plans[i].Name.Resolve(locale)
			plans[i].ResolvedNotes = plans[i].Features.Resolve(locale)
		}
		return plans, nil
	})
}

// Projects returns the localized projects catalog through the response cache.
func (a *App) Projects(ctx context.Context, locale domain.Locale) (json.RawMessage, error) {
	return a.catalog(ctx, "projects", locale, func(ctx context.Context) (any, error) {
		projects, err := a.store.Projects(ctx)
		if err != nil {
			return nil, err
		}
		for i := range projects {
			projects[i].ResolvedTitle = projects[i].Title.Resolve(locale)
		}
		return projects, nil
	})
}

func (a *App) catalog(ctx context.Context, name string, locale domain.Locale, fetch cache.FetchFunc) (json.RawMessage, error) {
	if locale == "" {
		locale = domain.LocaleEN
	}
	key := name + ":" + string(locale)
	if a.cache == nil {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	}
	return a.cache.Get(ctx, key, a.catalogTTL, fetch)
}

func (a *App) activeSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, found, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if !found {
		return domain.Session{}, ErrSessionNotFound
	}
	if session.Completed() {
		return session, ErrSessionCompleted
	}
	if session.Expired(a.now().UTC()) {
		return session, ErrSessionExpired
	}
	return session, nil
}

func localizeQuestion(q *domain.Question, locale domain.Locale) {
	q.ResolvedText = q.Text.Resolve(locale)
	for i := range q.Options {
		q.Options[i].ResolvedText = q.Options[i].Text.Resolve(locale)
	}
}

func sanitizeValue(v domain.AnswerValue) domain.AnswerValue {
	switch v.Kind {
	case domain.AnswerValueText:
		v.Text = sanitize.Clean(v.Text)
	case domain.AnswerValueChoices:
		v.Choices = sanitize.CleanSlice(v.Choices)
	}
	return v
}

func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
