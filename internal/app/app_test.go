package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"leadcapture/internal/cache"
	"leadcapture/internal/ratelimit"
	"leadcapture/internal/storage"
	"leadcapture/internal/store"
	"leadcapture/pkg/domain"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func seedForm(m *store.MemoryStore) {
	m.SeedQuestionnaire(domain.Questionnaire{ID: "qn-form", Kind: domain.KindForm, Active: true})
	m.SeedQuestion(domain.Question{
		ID: "q-name", QuestionnaireID: "qn-form",
		Text:       domain.LocalizedText{domain.LocaleEN: "Your name", domain.LocaleCS: "Vaše jméno"},
		AnswerType: domain.AnswerShortText, Required: true, DisplayOrder: 1, Active: true,
	})
	m.SeedQuestion(domain.Question{
		ID: "q-interest", QuestionnaireID: "qn-form",
		Text:       domain.LocalizedText{domain.LocaleEN: "What are you interested in?"},
		AnswerType: domain.AnswerMultipleChoice, Required: true, DisplayOrder: 2, Active: true,
		Options: []domain.QuestionOption{
			{ID: "o-fence", QuestionID: "q-interest", DisplayOrder: 1,
				Text: domain.LocalizedText{domain.LocaleEN: "Fencing"}},
			{ID: "o-gate", QuestionID: "q-interest", DisplayOrder: 2,
				Text: domain.LocalizedText{domain.LocaleEN: "Gates"}},
		},
	})
}

func newTestApp(t *testing.T, m *store.MemoryStore, opts ...func(*Config)) *App {
	t.Helper()
	cfg := Config{Store: m}
	for _, opt := range opts {
		opt(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestCreateSession(t *testing.T) {
	m := store.NewMemoryStore()
	seedForm(m)
	a := newTestApp(t, m)
	ctx := context.Background()

	session, err := a.CreateSession(ctx, domain.KindForm, domain.LocaleEN)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := uuid.Parse(session.ID); err != nil {
		t.Fatalf("session id %q is not a UUID: %v", session.ID, err)
	}
	if !hexToken.MatchString(session.CSRFToken) {
		t.Fatalf("csrf token %q is not 64 hex chars", session.CSRFToken)
	}
	if got := session.ExpiresAt.Sub(session.StartedAt); got != SessionTTL {
		t.Fatalf("session TTL = %v, want %v", got, SessionTTL)
	}
	if session.QuestionnaireID != "qn-form" {
		t.Fatalf("questionnaire id = %q", session.QuestionnaireID)
	}

	if _, err := a.CreateSession(ctx, domain.KindSurvey, domain.LocaleEN); !errors.Is(err, ErrNoActiveQuestionnaire) {
		t.Fatalf("expected ErrNoActiveQuestionnaire, got %v", err)
	}
}

func TestQuestionsLifecycleChecks(t *testing.T) {
	m := store.NewMemoryStore()
	seedForm(m)
	now := time.Now().UTC()
	clock := &now
	a := newTestApp(t, m, func(cfg *Config) {
		cfg.Now = func() time.Time { return *clock }
	})
	ctx := context.Background()

	if _, _, err := a.Questions(ctx, "missing", domain.LocaleEN); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session, err := a.CreateSession(ctx, domain.KindForm, domain.LocaleCS)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	questions, got, err := a.Questions(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("returned session %q, want %q", got.ID, session.ID)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	// Session locale is Czech; the first question has a Czech translation,
	// the second falls back to English.
	if questions[0].ResolvedText != "Vaše jméno" {
		t.Fatalf("localized text = %q", questions[0].ResolvedText)
	}
	if questions[1].ResolvedText != "What are you interested in?" {
		t.Fatalf("fallback text = %q", questions[1].ResolvedText)
	}
	if questions[1].Options[0].ResolvedText != "Fencing" {
		t.Fatalf("option text = %q", questions[1].Options[0].ResolvedText)
	}

	// Expiry is enforced lazily at read time.
	*clock = now.Add(SessionTTL + time.Minute)
	if _, _, err := a.Questions(ctx, session.ID, ""); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSubmitAnswers(t *testing.T) {
	m := store.NewMemoryStore()
	seedForm(m)
	a := newTestApp(t, m)
	ctx := context.Background()

	session, err := a.CreateSession(ctx, domain.KindForm, domain.LocaleEN)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	err = a.SubmitAnswers(ctx, session.ID, []domain.SubmittedAnswer{
		{QuestionID: "q-name", Value: domain.TextValue("")},
	})
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs.Errors) != 2 {
		t.Fatalf("got %d validation errors, want 2: %+v", len(verrs.Errors), verrs.Errors)
	}
	if verrs.Errors[1].Message != "Please select at least one option" {
		t.Fatalf("message = %q", verrs.Errors[1].Message)
	}

	err = a.SubmitAnswers(ctx, session.ID, []domain.SubmittedAnswer{
		{QuestionID: "q-name", Value: domain.TextValue(`<script>alert(1)</script>John`)},
		{QuestionID: "q-interest", Value: domain.ChoicesValue("o-fence")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	persisted := m.Answers(session.ID)
	if len(persisted) != 2 {
		t.Fatalf("persisted %d answers, want 2", len(persisted))
	}
	if persisted[0].Value.Text != "John" {
		t.Fatalf("text answer not sanitized before persistence: %q", persisted[0].Value.Text)
	}

	err = a.SubmitAnswers(ctx, session.ID, []domain.SubmittedAnswer{
		{QuestionID: "q-name", Value: domain.TextValue("again")},
		{QuestionID: "q-interest", Value: domain.ChoicesValue("o-gate")},
	})
	if !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("resubmission should fail with ErrSessionCompleted, got %v", err)
	}
}

func uploadFixtures(t *testing.T, opts ...func(*Config)) (*App, *store.MemoryStore) {
	t.Helper()
	m := store.NewMemoryStore()
	m.SeedProject(domain.Project{
		ID:             "p-1",
		Title:          domain.LocalizedText{domain.LocaleEN: "Family house fence"},
		UploadsEnabled: true,
		UploadPassword: "orchard",
	})
	m.SeedProject(domain.Project{
		ID:             "p-closed",
		Title:          domain.LocalizedText{domain.LocaleEN: "Closed project"},
		UploadsEnabled: false,
	})
	objects, err := storage.NewDiskStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	opts = append(opts, func(cfg *Config) { cfg.Objects = objects })
	return newTestApp(t, m, opts...), m
}

func TestCreateUploadSession(t *testing.T) {
	a, _ := uploadFixtures(t)
	ctx := context.Background()

	if _, _, err := a.CreateUploadSession(ctx, "missing", "x", "1.2.3.4"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if _, _, err := a.CreateUploadSession(ctx, "p-closed", "x", "1.2.3.4"); !errors.Is(err, ErrUploadsDisabled) {
		t.Fatalf("expected ErrUploadsDisabled, got %v", err)
	}
	if _, _, err := a.CreateUploadSession(ctx, "p-1", "wrong", "1.2.3.4"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}

	session, project, err := a.CreateUploadSession(ctx, "p-1", "orchard", "1.2.3.4")
	if err != nil {
		t.Fatalf("create upload session: %v", err)
	}
	if project.Title.Resolve(domain.LocaleEN) != "Family house fence" {
		t.Fatalf("project title = %q", project.Title.Resolve(domain.LocaleEN))
	}
	if got := session.ExpiresAt.Sub(session.StartedAt); got != UploadSessionTTL {
		t.Fatalf("upload session TTL = %v, want %v", got, UploadSessionTTL)
	}
	if session.FileCount != 0 {
		t.Fatalf("new upload session file count = %d", session.FileCount)
	}
}

func TestCreateUploadSessionRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	limiter, err := ratelimit.NewFixedWindowLimiter(client, "test:upload", 5, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	a, _ := uploadFixtures(t, func(cfg *Config) { cfg.UploadLimiter = limiter })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := a.CreateUploadSession(ctx, "p-1", "wrong", "9.9.9.9"); !errors.Is(err, ErrBadPassword) {
			t.Fatalf("attempt %d: expected ErrBadPassword, got %v", i+1, err)
		}
	}
	if _, _, err := a.CreateUploadSession(ctx, "p-1", "wrong", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("sixth attempt should be rate limited, got %v", err)
	}
	// A different client is unaffected.
	if _, _, err := a.CreateUploadSession(ctx, "p-1", "orchard", "8.8.8.8"); err != nil {
		t.Fatalf("other client blocked: %v", err)
	}
}

func TestSaveUpload(t *testing.T) {
	a, _ := uploadFixtures(t)
	ctx := context.Background()

	session, _, err := a.CreateUploadSession(ctx, "p-1", "orchard", "1.2.3.4")
	if err != nil {
		t.Fatalf("create upload session: %v", err)
	}

	content := "jpeg bytes"
	file, err := a.SaveUpload(ctx, session.ID, "../sneaky/../fence.jpg", "image/jpeg", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	if file.FileName != "fence.jpg" {
		t.Fatalf("file name = %q, want flattened base name", file.FileName)
	}
	if file.URL == "" {
		t.Fatalf("upload URL missing")
	}

	if _, err := a.SaveUpload(ctx, session.ID, "big.pdf", "application/pdf", MaxFileBytes+1, strings.NewReader("x")); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := a.SaveUpload(ctx, session.ID, "run.exe", "application/x-msdownload", 10, strings.NewReader("x")); !errors.Is(err, ErrMimeNotAllowed) {
		t.Fatalf("expected ErrMimeNotAllowed, got %v", err)
	}
	if _, err := a.SaveUpload(ctx, "missing", "a.png", "image/png", 1, strings.NewReader("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveUploadFileCountQuota(t *testing.T) {
	a, _ := uploadFixtures(t)
	ctx := context.Background()

	session, _, err := a.CreateUploadSession(ctx, "p-1", "orchard", "1.2.3.4")
	if err != nil {
		t.Fatalf("create upload session: %v", err)
	}
	for i := 1; i < MaxFilesPerSession; i++ {
		name := fmt.Sprintf("f-%d.png", i)
		if _, err := a.SaveUpload(ctx, session.ID, name, "image/png", 1, strings.NewReader("x")); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
	}
	if _, err := a.SaveUpload(ctx, session.ID, "last.png", "image/png", 1, strings.NewReader("x")); err != nil {
		t.Fatalf("upload %d: %v", MaxFilesPerSession, err)
	}
	if _, err := a.SaveUpload(ctx, session.ID, "over.png", "image/png", 1, strings.NewReader("x")); !errors.Is(err, ErrSessionQuotaExceeded) {
		t.Fatalf("upload past the file-count quota should fail, got %v", err)
	}
}

func TestUploadSessionExpiry(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	a, _ := uploadFixtures(t, func(cfg *Config) {
		cfg.Now = func() time.Time { return *clock }
	})
	ctx := context.Background()

	session, _, err := a.CreateUploadSession(ctx, "p-1", "orchard", "1.2.3.4")
	if err != nil {
		t.Fatalf("create upload session: %v", err)
	}
	*clock = now.Add(UploadSessionTTL + time.Minute)
	if _, err := a.SaveUpload(ctx, session.ID, "late.png", "image/png", 1, strings.NewReader("x")); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestCatalogReadsGoThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	m := store.NewMemoryStore()
	m.SeedPricingPlan(domain.PricingPlan{
		ID: "plan-1", PriceCZK: 12000, DisplayOrder: 1,
		Name: domain.LocalizedText{domain.LocaleEN: "Standard fence"},
	})
	a := newTestApp(t, m, func(cfg *Config) {
		cfg.Cache = cache.New(client, "test:cache")
	})
	ctx := context.Background()

	first, err := a.Pricing(ctx, domain.LocaleEN)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	if !strings.Contains(string(first), "Standard fence") {
		t.Fatalf("pricing payload = %s", first)
	}
	// A later seed is invisible within the TTL window because the payload is
	// served from the cache.
	m.SeedPricingPlan(domain.PricingPlan{ID: "plan-2", PriceCZK: 20000, DisplayOrder: 2})
	second, err := a.Pricing(ctx, domain.LocaleEN)
	if err != nil {
		t.Fatalf("pricing again: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("cached pricing changed within TTL")
	}
}
