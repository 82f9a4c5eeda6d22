// Package server exposes the HTTP API: session issuance, question reads,
// answer submission, upload sessions, and the cached catalog endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"leadcapture/internal/app"
	"leadcapture/internal/csrf"
	"leadcapture/internal/util"
	"leadcapture/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	CookieSecure      bool
	TrustedProxyCIDRs []string
}

// Server exposes HTTP endpoints for the lead-capture backend.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	cookieSecure bool
	trusted      *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires the application core")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:          cfg.App,
		mux:          http.NewServeMux(),
		cookieSecure: cfg.CookieSecure,
		trusted:      trusted,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("leadcapture", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// sessions & questionnaires
	s.mux.HandleFunc("/api/session", s.handleCreateSession)
	s.mux.HandleFunc("/api/questions", s.handleQuestions)
	s.mux.HandleFunc("/api/answers", s.csrfProtected(s.handleSubmitAnswers))

	// uploads
	s.mux.HandleFunc("/api/upload-session", s.handleCreateUploadSession)
	s.mux.HandleFunc("/api/upload", s.csrfProtected(s.handleUpload))

	// catalog
	s.mux.HandleFunc("/api/pricing", s.handlePricing)
	s.mux.HandleFunc("/api/projects", s.handleProjects)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// csrfProtected rejects state-mutating requests whose header token does not
// byte-match the cookie token, before any business logic runs.
func (s *Server) csrfProtected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !csrf.ValidateRequest(r) {
			s.audit(r, "csrf.validate", "fail")
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}
		next(w, r)
	}
}

type createSessionRequest struct {
	Type   string `json:"type"`
	Locale string `json:"locale"`
}

type createSessionResponse struct {
	SessionID       string `json:"sessionId"`
	CSRFToken       string `json:"csrfToken"`
	QuestionnaireID string `json:"questionnaireId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind, ok := domain.ParseQuestionnaireKind(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be form or survey")
		return
	}
	locale, ok := domain.ParseLocale(req.Locale)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported locale")
		return
	}
	session, err := s.app.CreateSession(r.Context(), kind, locale)
	if err != nil {
		if errors.Is(err, app.ErrNoActiveQuestionnaire) {
			s.audit(r, "session.create", "fail", "reason", "no_active_questionnaire")
			writeError(w, http.StatusNotFound, "no active questionnaire")
			return
		}
		s.internalError(w, r, "session.create", err)
		return
	}
	csrf.SetCookie(w, session.CSRFToken, int(app.SessionTTL.Seconds()), s.cookieSecure)
	s.audit(r, "session.create", "success", "session_id", session.ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       session.ID,
		CSRFToken:       session.CSRFToken,
		QuestionnaireID: session.QuestionnaireID,
	})
}

type sessionState struct {
	SessionID string        `json:"sessionId"`
	Locale    domain.Locale `json:"locale"`
	Completed bool          `json:"completed"`
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	locale, _ := domain.ParseLocale(r.URL.Query().Get("locale"))

	questions, session, err := s.app.Questions(r.Context(), sessionID, locale)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, app.ErrSessionCompleted):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Survey already completed",
				"session": sessionState{SessionID: session.ID, Locale: session.Locale, Completed: true},
			})
		case errors.Is(err, app.ErrSessionExpired):
			writeError(w, http.StatusGone, "session expired")
		default:
			s.internalError(w, r, "questions.read", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"session":   sessionState{SessionID: session.ID, Locale: session.Locale, Completed: false},
	})
}

type submitAnswersRequest struct {
	SessionID string                        `json:"sessionId"`
	Answers   map[string]domain.AnswerValue `json:"answers"`
}

func (s *Server) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req submitAnswersRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	submitted := make([]domain.SubmittedAnswer, 0, len(req.Answers))
	for questionID, value := range req.Answers {
		submitted = append(submitted, domain.SubmittedAnswer{QuestionID: questionID, Value: value})
	}

	err := s.app.SubmitAnswers(r.Context(), req.SessionID, submitted)
	if err != nil {
		var verrs *app.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":            "validation failed",
				"validationErrors": verrs.Errors,
			})
		case errors.Is(err, app.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, app.ErrSessionCompleted):
			s.audit(r, "answers.submit", "fail", "reason", "already_completed")
			writeError(w, http.StatusConflict, "Survey already completed")
		case errors.Is(err, app.ErrSessionExpired):
			writeError(w, http.StatusGone, "session expired")
		default:
			s.internalError(w, r, "answers.submit", err)
		}
		return
	}
	s.audit(r, "answers.submit", "success", "session_id", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type createUploadSessionRequest struct {
	ProjectID string `json:"projectId"`
	Password  string `json:"password"`
	Locale    string `json:"locale"`
}

type createUploadSessionResponse struct {
	SessionID    string `json:"sessionId"`
	CSRFToken    string `json:"csrfToken"`
	ProjectID    string `json:"projectId"`
	ProjectTitle string `json:"projectTitle"`
}

func (s *Server) handleCreateUploadSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createUploadSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}
	locale, ok := domain.ParseLocale(req.Locale)
	if !ok {
		locale = domain.LocaleEN
	}

	clientIP := util.ClientIP(r, s.trusted)
	session, project, err := s.app.CreateUploadSession(r.Context(), req.ProjectID, req.Password, clientIP)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrRateLimited):
			s.audit(r, "upload_session.create", "rate_limited")
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		case errors.Is(err, app.ErrProjectNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, app.ErrUploadsDisabled):
			writeError(w, http.StatusForbidden, "uploads are disabled for this project")
		case errors.Is(err, app.ErrBadPassword):
			s.audit(r, "upload_session.create", "fail", "reason", "bad_password", "project_id", req.ProjectID)
			writeError(w, http.StatusUnauthorized, "incorrect password")
		default:
			s.internalError(w, r, "upload_session.create", err)
		}
		return
	}
	csrf.SetCookie(w, session.CSRFToken, int(app.UploadSessionTTL.Seconds()), s.cookieSecure)
	s.audit(r, "upload_session.create", "success", "session_id", session.ID, "project_id", project.ID)
	writeJSON(w, http.StatusCreated, createUploadSessionResponse{
		SessionID:    session.ID,
		CSRFToken:    session.CSRFToken,
		ProjectID:    project.ID,
		ProjectTitle: project.Title.Resolve(locale),
	})
}

type uploadResponse struct {
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxFileBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	saved, err := s.app.SaveUpload(r.Context(), sessionID, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "upload session not found")
		case errors.Is(err, app.ErrSessionExpired):
			s.audit(r, "upload.save", "fail", "reason", "session_expired", "session_id", sessionID)
			writeError(w, http.StatusGone, "upload session expired")
		case errors.Is(err, app.ErrFileTooLarge):
			writeError(w, http.StatusBadRequest, "file exceeds the 5MB limit")
		case errors.Is(err, app.ErrMimeNotAllowed):
			writeError(w, http.StatusBadRequest, "file type not allowed")
		case errors.Is(err, app.ErrSessionQuotaExceeded):
			writeError(w, http.StatusBadRequest, "upload session quota exceeded")
		default:
			s.internalError(w, r, "upload.save", err)
		}
		return
	}
	s.audit(r, "upload.save", "success", "session_id", sessionID, "file_id", saved.ID)
	writeJSON(w, http.StatusCreated, uploadResponse{
		URL:       saved.URL,
		FileName:  saved.FileName,
		SizeBytes: saved.SizeBytes,
	})
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	s.handleCatalog(w, r, "pricing.read", s.app.Pricing)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.handleCatalog(w, r, "projects.read", s.app.Projects)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request, event string, read func(context.Context, domain.Locale) (json.RawMessage, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	locale, ok := domain.ParseLocale(r.URL.Query().Get("locale"))
	if !ok {
		locale = domain.LocaleEN
	}
	payload, err := read(r.Context(), locale)
	if err != nil {
		s.internalError(w, r, event, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	util.LoggerFromContext(r.Context()).Error("internal error", "event", event, "err", err)
	writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
