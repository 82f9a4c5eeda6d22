package app

import (
	"errors"
	"fmt"

	"leadcapture/internal/answers"
)

var (
	// ErrNoActiveQuestionnaire indicates no questionnaire of the requested
	// type is currently active.
	ErrNoActiveQuestionnaire = errors.New("no active questionnaire")
	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCompleted indicates the session already accepted a submission.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrSessionExpired indicates the session lifetime elapsed.
	ErrSessionExpired = errors.New("session expired")
	// ErrProjectNotFound indicates an unknown project ID.
	ErrProjectNotFound = errors.New("project not found")
	// ErrUploadsDisabled indicates the project does not accept uploads.
	ErrUploadsDisabled = errors.New("uploads disabled for this project")
	// ErrBadPassword indicates the supplied upload password did not match.
	ErrBadPassword = errors.New("incorrect upload password")
	// ErrRateLimited indicates too many attempts from one client.
	ErrRateLimited = errors.New("too many attempts")
	// ErrFileTooLarge indicates a single file over the per-file limit.
	ErrFileTooLarge = errors.New("file exceeds the size limit")
	// ErrMimeNotAllowed indicates a file type outside the allow-list.
	ErrMimeNotAllowed = errors.New("file type not allowed")
	// ErrSessionQuotaExceeded indicates the upload session hit its file count
	// or total size budget.
	ErrSessionQuotaExceeded = errors.New("upload session quota exceeded")
)

// ValidationErrors aggregates per-question failures from a submission so the
// client can render inline feedback for every field at once.
type ValidationErrors struct {
	Errors []answers.ValidationError
}

func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("%d answers failed validation", len(e.Errors))
}
