package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"leadcapture/pkg/domain"
)

// GORM models used for persistence. Localized strings and answer payloads are
// stored as jsonb.
type QuestionnaireModel struct {
	ID     string `gorm:"primaryKey"`
	Kind   string `gorm:"column:type;not null;index"`
	Active bool   `gorm:"not null;index"`
}

func (QuestionnaireModel) TableName() string { return "questionnaires" }

type SessionModel struct {
	SessionID       string `gorm:"primaryKey"`
	QuestionnaireID string `gorm:"not null;index"`
	Locale          string `gorm:"not null"`
	CSRFToken       string `gorm:"column:csrf_token;not null"`
	StartedAt       time.Time
	ExpiresAt       time.Time `gorm:"not null;index"`
	CompletedAt     *time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type QuestionModel struct {
	ID              string         `gorm:"primaryKey"`
	QuestionnaireID string         `gorm:"not null;index"`
	QuestionText    datatypes.JSON `gorm:"type:jsonb;not null"`
	AnswerType      string         `gorm:"not null"`
	Required        bool           `gorm:"not null"`
	DisplayOrder    int            `gorm:"not null"`
	Active          bool           `gorm:"not null"`
}

func (QuestionModel) TableName() string { return "questions" }

type QuestionOptionModel struct {
	ID           string         `gorm:"primaryKey"`
	QuestionID   string         `gorm:"not null;index"`
	OptionText   datatypes.JSON `gorm:"type:jsonb;not null"`
	DisplayOrder int            `gorm:"not null"`
}

func (QuestionOptionModel) TableName() string { return "question_options" }

type AnswerModel struct {
	ID         string         `gorm:"primaryKey"`
	SessionID  string         `gorm:"not null;index"`
	QuestionID string         `gorm:"not null;index"`
	Value      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (AnswerModel) TableName() string { return "answers" }

type ProjectModel struct {
	ID             string         `gorm:"primaryKey"`
	Title          datatypes.JSON `gorm:"type:jsonb;not null"`
	UploadsEnabled bool           `gorm:"not null"`
	UploadPassword string
	DisplayOrder   int `gorm:"not null"`
}

func (ProjectModel) TableName() string { return "projects" }

type UploadSessionModel struct {
	SessionID      string `gorm:"primaryKey"`
	ProjectID      string `gorm:"not null;index"`
	CSRFToken      string `gorm:"column:csrf_token;not null"`
	FileCount      int    `gorm:"not null"`
	TotalSizeBytes int64  `gorm:"not null"`
	StartedAt      time.Time
	ExpiresAt      time.Time `gorm:"not null;index"`
}

func (UploadSessionModel) TableName() string { return "upload_sessions" }

type UploadedFileModel struct {
	ID        string `gorm:"primaryKey"`
	SessionID string `gorm:"not null;index"`
	ProjectID string `gorm:"not null;index"`
	FileName  string `gorm:"not null"`
	SizeBytes int64  `gorm:"not null"`
	MimeType  string `gorm:"not null"`
	URL       string `gorm:"not null"`
	CreatedAt time.Time
}

func (UploadedFileModel) TableName() string { return "uploaded_files" }

type PricingPlanModel struct {
	ID           string         `gorm:"primaryKey"`
	Name         datatypes.JSON `gorm:"type:jsonb;not null"`
	PriceCZK     int            `gorm:"column:price_czk;not null"`
	Features     datatypes.JSON `gorm:"type:jsonb"`
	DisplayOrder int            `gorm:"not null"`
}

func (PricingPlanModel) TableName() string { return "pricing_plans" }

func localizedToJSON(t domain.LocalizedText) datatypes.JSON {
	if t == nil {
		t = domain.LocalizedText{}
	}
	data, _ := json.Marshal(t)
	return datatypes.JSON(data)
}

func localizedFromJSON(data datatypes.JSON) domain.LocalizedText {
	out := domain.LocalizedText{}
	_ = json.Unmarshal(data, &out)
	return out
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		SessionID:       s.ID,
		QuestionnaireID: s.QuestionnaireID,
		Locale:          string(s.Locale),
		CSRFToken:       s.CSRFToken,
		StartedAt:       s.StartedAt,
		ExpiresAt:       s.ExpiresAt,
		CompletedAt:     s.CompletedAt,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:              m.SessionID,
		QuestionnaireID: m.QuestionnaireID,
		Locale:          domain.Locale(m.Locale),
		CSRFToken:       m.CSRFToken,
		StartedAt:       m.StartedAt,
		ExpiresAt:       m.ExpiresAt,
		CompletedAt:     m.CompletedAt,
	}
}

func questionFromModel(m QuestionModel, options []QuestionOptionModel) domain.Question {
	q := domain.Question{
		ID:              m.ID,
		QuestionnaireID: m.QuestionnaireID,
		Text:            localizedFromJSON(m.QuestionText),
		AnswerType:      domain.AnswerType(m.AnswerType),
		Required:        m.Required,
		DisplayOrder:    m.DisplayOrder,
		Active:          m.Active,
	}
	for _, o := range options {
		q.Options = append(q.Options, domain.QuestionOption{
			ID:           o.ID,
			QuestionID:   o.QuestionID,
			Text:         localizedFromJSON(o.OptionText),
			DisplayOrder: o.DisplayOrder,
		})
	}
	return q
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:             m.ID,
		Title:          localizedFromJSON(m.Title),
		UploadsEnabled: m.UploadsEnabled,
		UploadPassword: m.UploadPassword,
	}
}

func uploadSessionToModel(s domain.UploadSession) UploadSessionModel {
	return UploadSessionModel{
		SessionID:      s.ID,
		ProjectID:      s.ProjectID,
		CSRFToken:      s.CSRFToken,
		FileCount:      s.FileCount,
		TotalSizeBytes: s.TotalSizeBytes,
		StartedAt:      s.StartedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

func uploadSessionFromModel(m UploadSessionModel) domain.UploadSession {
	return domain.UploadSession{
		ID:             m.SessionID,
		ProjectID:      m.ProjectID,
		CSRFToken:      m.CSRFToken,
		FileCount:      m.FileCount,
		TotalSizeBytes: m.TotalSizeBytes,
		StartedAt:      m.StartedAt,
		ExpiresAt:      m.ExpiresAt,
	}
}

func pricingPlanFromModel(m PricingPlanModel) domain.PricingPlan {
	return domain.PricingPlan{
		ID:           m.ID,
		Name:         localizedFromJSON(m.Name),
		PriceCZK:     m.PriceCZK,
		Features:     localizedFromJSON(m.Features),
		DisplayOrder: m.DisplayOrder,
	}
}
