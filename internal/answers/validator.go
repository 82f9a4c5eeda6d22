// Package answers decides structural validity of submitted answers against
// question definitions. All functions are pure and deterministic.
package answers

import (
	"strings"

	"leadcapture/pkg/domain"
)

// ValidationError describes why an answer failed for one question.
type ValidationError struct {
	QuestionID string `json:"questionId"`
	Message    string `json:"message"`
}

const (
	msgRequired       = "This question is required"
	msgSelectOption   = "Please select at least one option"
	msgImageRequired  = "Please add at least one image"
	msgRatingRequired = "Please choose a rating"
)

// Validate checks one answer against its question definition. A nil result
// means valid. Optional questions accept anything, including no answer at all.
func Validate(q domain.Question, v domain.AnswerValue) *ValidationError {
	if !q.Required {
		return nil
	}
	switch q.AnswerType {
	case domain.AnswerShortText, domain.AnswerLongText, domain.AnswerSingleChoice:
		if v.Kind != domain.AnswerValueText || strings.TrimSpace(v.Text) == "" {
			return &ValidationError{QuestionID: q.ID, Message: msgRequired}
		}
	case domain.AnswerMultipleChoice, domain.AnswerChecklist:
		if v.Kind != domain.AnswerValueChoices || len(v.Choices) == 0 {
			return &ValidationError{QuestionID: q.ID, Message: msgSelectOption}
		}
	case domain.AnswerImage:
		if v.Kind != domain.AnswerValueChoices || len(v.Choices) == 0 {
			return &ValidationError{QuestionID: q.ID, Message: msgImageRequired}
		}
		for _, url := range v.Choices {
			if strings.TrimSpace(url) == "" {
				return &ValidationError{QuestionID: q.ID, Message: msgImageRequired}
			}
		}
	case domain.AnswerRating:
		// Presence only; numeric range is not enforced at this layer.
		if v.Absent() {
			return &ValidationError{QuestionID: q.ID, Message: msgRatingRequired}
		}
	default:
		if v.Absent() {
			return &ValidationError{QuestionID: q.ID, Message: msgRequired}
		}
	}
	return nil
}

// ValidateAll maps Validate over every question, collecting all failures so a
// form can show feedback for each field at once. Order follows the question
// sequence.
func ValidateAll(questions []domain.Question, values map[string]domain.AnswerValue) []ValidationError {
	var errs []ValidationError
	for _, q := range questions {
		if err := Validate(q, values[q.ID]); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// FirstUnansweredRequired returns the first question whose answer fails, for
// paginated step gating. ok is false when every question passes.
func FirstUnansweredRequired(questions []domain.Question, values map[string]domain.AnswerValue) (domain.Question, bool) {
	for _, q := range questions {
		if err := Validate(q, values[q.ID]); err != nil {
			return q, true
		}
	}
	return domain.Question{}, false
}
