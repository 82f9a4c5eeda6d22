package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"leadcapture/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&QuestionnaireModel{},
		&SessionModel{},
		&QuestionModel{},
		&QuestionOptionModel{},
		&AnswerModel{},
		&ProjectModel{},
		&UploadSessionModel{},
		&UploadedFileModel{},
		&PricingPlanModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// ActiveQuestionnaire returns the single active questionnaire of the kind.
func (s *GormStore) ActiveQuestionnaire(ctx context.Context, kind domain.QuestionnaireKind) (domain.Questionnaire, bool, error) {
	var model QuestionnaireModel
	err := s.db.WithContext(ctx).
		Where("type = ? AND active = ?", string(kind), true).
		First(&model).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Questionnaire{}, false, nil
	}
	if err != nil {
		return domain.Questionnaire{}, false, err
	}
	return domain.Questionnaire{ID: model.ID, Kind: domain.QuestionnaireKind(model.Kind), Active: model.Active}, true, nil
}

// Questions returns active questions ordered by display_order, each with its
// options ordered by their own display_order.
func (s *GormStore) Questions(ctx context.Context, questionnaireID string) ([]domain.Question, error) {
	var models []QuestionModel
	err := s.db.WithContext(ctx).
		Where("questionnaire_id = ? AND active = ?", questionnaireID, true).
		Order("display_order ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var optionModels []QuestionOptionModel
	err = s.db.WithContext(ctx).
		Where("question_id IN ?", ids).
		Order("display_order ASC").
		Find(&optionModels).Error
	if err != nil {
		return nil, err
	}
	optionsByQuestion := make(map[string][]QuestionOptionModel, len(models))
	for _, o := range optionModels {
		optionsByQuestion[o.QuestionID] = append(optionsByQuestion[o.QuestionID], o)
	}

	res := make([]domain.Question, 0, len(models))
	for _, m := range models {
		res = append(res, questionFromModel(m, optionsByQuestion[m.ID]))
	}
	return res, nil
}

// CreateSession persists a new session row.
func (s *GormStore) CreateSession(ctx context.Context, sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetSession returns a session by ID.
func (s *GormStore) GetSession(ctx context.Context, id string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "session_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// SaveSubmission stores all answers and marks the session completed in one
// transaction. The conditional update on completed_at guards against two
// concurrent submissions for the same session.
func (s *GormStore) SaveSubmission(ctx context.Context, sessionID string, completedAt time.Time, answers []domain.SubmittedAnswer) (bool, error) {
	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SessionModel{}).
			Where("session_id = ? AND completed_at IS NULL", sessionID).
			Update("completed_at", completedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true
		for _, a := range answers {
			value, err := json.Marshal(a.Value)
			if err != nil {
				return fmt.Errorf("marshal answer value: %w", err)
			}
			model := AnswerModel{
				ID:         NewID(),
				SessionID:  sessionID,
				QuestionID: a.QuestionID,
				Value:      datatypes.JSON(value),
				CreatedAt:  completedAt,
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// CreateUploadSession persists a new upload session row.
func (s *GormStore) CreateUploadSession(ctx context.Context, sess domain.UploadSession) error {
	model := uploadSessionToModel(sess)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetUploadSession returns an upload session by ID.
func (s *GormStore) GetUploadSession(ctx context.Context, id string) (domain.UploadSession, bool, error) {
	var model UploadSessionModel
	if err := s.db.WithContext(ctx).First(&model, "session_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UploadSession{}, false, nil
		}
		return domain.UploadSession{}, false, err
	}
	return uploadSessionFromModel(model), true, nil
}

// RecordUpload bumps the session counters and stores file metadata. The
// counter update carries the limits in its WHERE clause so two concurrent
// uploads cannot push a session over quota.
func (s *GormStore) RecordUpload(ctx context.Context, file domain.UploadedFile, maxFiles int, maxTotalBytes int64) (bool, error) {
	accepted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&UploadSessionModel{}).
			Where("session_id = ? AND file_count < ? AND total_size_bytes + ? <= ?",
				file.SessionID, maxFiles, file.SizeBytes, maxTotalBytes).
			Updates(map[string]any{
				"file_count":       gorm.Expr("file_count + 1"),
				"total_size_bytes": gorm.Expr("total_size_bytes + ?", file.SizeBytes),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		accepted = true
		model := UploadedFileModel{
			ID:        file.ID,
			SessionID: file.SessionID,
			ProjectID: file.ProjectID,
			FileName:  file.FileName,
			SizeBytes: file.SizeBytes,
			MimeType:  file.MimeType,
			URL:       file.URL,
			CreatedAt: file.CreatedAt,
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// PricingPlans returns all pricing plans ordered for display.
func (s *GormStore) PricingPlans(ctx context.Context) ([]domain.PricingPlan, error) {
	var models []PricingPlanModel
	if err := s.db.WithContext(ctx).Order("display_order ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PricingPlan, 0, len(models))
	for _, m := range models {
		res = append(res, pricingPlanFromModel(m))
	}
	return res, nil
}

// Projects returns all projects ordered for display.
func (s *GormStore) Projects(ctx context.Context) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.WithContext(ctx).Order("display_order ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}
