package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Locale string

const (
	LocaleEN Locale = "en"
	LocaleCS Locale = "cs"
	LocaleDE Locale = "de"
)

// ParseLocale normalizes a locale string. ok is false for unsupported values.
func ParseLocale(raw string) (Locale, bool) {
	switch Locale(strings.ToLower(strings.TrimSpace(raw))) {
	case LocaleEN:
		return LocaleEN, true
	case LocaleCS:
		return LocaleCS, true
	case LocaleDE:
		return LocaleDE, true
	default:
		return "", false
	}
}

// LocalizedText maps locale codes to translated strings.
type LocalizedText map[Locale]string

// Resolve returns the text for the requested locale, falling back to English.
func (t LocalizedText) Resolve(locale Locale) string {
	if v, ok := t[locale]; ok && v != "" {
		return v
	}
	return t[LocaleEN]
}

type QuestionnaireKind string

const (
	KindForm   QuestionnaireKind = "form"
	KindSurvey QuestionnaireKind = "survey"
)

// ParseQuestionnaireKind normalizes a questionnaire type string.
func ParseQuestionnaireKind(raw string) (QuestionnaireKind, bool) {
	switch QuestionnaireKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindForm:
		return KindForm, true
	case KindSurvey:
		return KindSurvey, true
	default:
		return "", false
	}
}

type AnswerType string

const (
	AnswerShortText      AnswerType = "short_text"
	AnswerLongText       AnswerType = "long_text"
	AnswerSingleChoice   AnswerType = "single_choice"
	AnswerMultipleChoice AnswerType = "multiple_choice"
	AnswerChecklist      AnswerType = "checklist"
	AnswerRating         AnswerType = "rating"
	AnswerImage          AnswerType = "image"
)

type Questionnaire struct {
	ID     string            `json:"id"`
	Kind   QuestionnaireKind `json:"type"`
	Active bool              `json:"active"`
}

type Question struct {
	ID              string           `json:"id"`
	QuestionnaireID string           `json:"questionnaireId"`
	Text            LocalizedText    `json:"-"`
	ResolvedText    string           `json:"questionText"`
	AnswerType      AnswerType       `json:"answerType"`
	Required        bool             `json:"required"`
	DisplayOrder    int              `json:"displayOrder"`
	Active          bool             `json:"-"`
	Options         []QuestionOption `json:"options,omitempty"`
}

type QuestionOption struct {
	ID           string        `json:"id"`
	QuestionID   string        `json:"questionId"`
	Text         LocalizedText `json:"-"`
	ResolvedText string        `json:"optionText"`
	DisplayOrder int           `json:"displayOrder"`
}

// AnswerValueKind discriminates the tagged answer variant.
type AnswerValueKind int

const (
	AnswerValueAbsent AnswerValueKind = iota
	AnswerValueText
	AnswerValueChoices
	AnswerValueNumber
)

// AnswerValue is a tagged variant over the answer payload shapes a client may
// send: free text, a list of choices/URLs, or a number (ratings).
type AnswerValue struct {
	Kind    AnswerValueKind
	Text    string
	Choices []string
	Number  float64
}

// TextValue wraps a free-text answer.
func TextValue(s string) AnswerValue {
	return AnswerValue{Kind: AnswerValueText, Text: s}
}

// ChoicesValue wraps a multi-select answer.
func ChoicesValue(vals ...string) AnswerValue {
	return AnswerValue{Kind: AnswerValueChoices, Choices: vals}
}

// NumberValue wraps a rating answer.
func NumberValue(n float64) AnswerValue {
	return AnswerValue{Kind: AnswerValueNumber, Number: n}
}

// Absent reports whether no answer was provided.
func (v AnswerValue) Absent() bool {
	return v.Kind == AnswerValueAbsent
}

// UnmarshalJSON decodes the loose wire shapes (string | []string | number)
// into the tagged variant. null decodes as absent.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = AnswerValue{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = TextValue(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = ChoicesValue(list...)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	return errors.New("answer value must be a string, string array, or number")
}

// MarshalJSON renders the variant back to its wire shape.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AnswerValueText:
		return json.Marshal(v.Text)
	case AnswerValueChoices:
		return json.Marshal(v.Choices)
	case AnswerValueNumber:
		return json.Marshal(v.Number)
	default:
		return []byte("null"), nil
	}
}

type Session struct {
	ID              string            `json:"sessionId"`
	QuestionnaireID string            `json:"questionnaireId"`
	Kind            QuestionnaireKind `json:"-"`
	Locale          Locale            `json:"locale"`
	CSRFToken       string            `json:"-"`
	StartedAt       time.Time         `json:"startedAt"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

// Completed reports whether the session reached its terminal completed state.
func (s Session) Completed() bool {
	return s.CompletedAt != nil
}

// Expired reports whether the session lifetime elapsed at the given instant.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SubmittedAnswer binds one answer value to its question at submission time.
type SubmittedAnswer struct {
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
}

type Project struct {
	ID             string        `json:"id"`
	Title          LocalizedText `json:"-"`
	ResolvedTitle  string        `json:"title"`
	UploadsEnabled bool          `json:"uploadsEnabled"`
	UploadPassword string        `json:"-"`
}

type UploadSession struct {
	ID             string     `json:"sessionId"`
	ProjectID      string     `json:"projectId"`
	CSRFToken      string     `json:"-"`
	FileCount      int        `json:"fileCount"`
	TotalSizeBytes int64      `json:"totalSizeBytes"`
	StartedAt      time.Time  `json:"startedAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
}

// Expired reports whether the upload session lifetime elapsed.
func (s UploadSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type UploadedFile struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ProjectID string    `json:"projectId"`
	FileName  string    `json:"fileName"`
	SizeBytes int64     `json:"sizeBytes"`
	MimeType  string    `json:"mimeType"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

type PricingPlan struct {
	ID            string        `json:"id"`
	Name          LocalizedText `json:"-"`
	ResolvedName  string        `json:"name"`
	PriceCZK      int           `json:"priceCzk"`
	Features      LocalizedText `json:"-"`
	ResolvedNotes string        `json:"features,omitempty"`
	DisplayOrder  int           `json:"displayOrder"`
}
