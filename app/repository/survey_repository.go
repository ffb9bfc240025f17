package repository

import (
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
)

type gormSurveyRepository struct {
	db *gorm.DB
}

// NewSurveyRepository creates a survey repository backed by GORM.
func NewSurveyRepository(db *gorm.DB) SurveyRepository {
	return &gormSurveyRepository{db: db}
}

func (r *gormSurveyRepository) Create(survey *models.Survey) error {
	return r.db.Create(survey).Error
}

func (r *gormSurveyRepository) GetByID(id uint) (*models.Survey, error) {
	var survey models.Survey
	if err := r.db.First(&survey, id).Error; err != nil {
		return nil, err
	}
	return &survey, nil
}

func (r *gormSurveyRepository) Update(survey *models.Survey) error {
	return r.db.Save(survey).Error
}

type gormResponseRepository struct {
	db *gorm.DB
}

// NewResponseRepository creates a survey response repository backed by GORM.
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &gormResponseRepository{db: db}
}

func (r *gormResponseRepository) Create(response *models.SurveyResponse) error {
	return r.db.Create(response).Error
}

func (r *gormResponseRepository) GetByID(id uint) (*models.SurveyResponse, error) {
	var response models.SurveyResponse
	if err := r.db.First(&response, id).Error; err != nil {
		return nil, err
	}
	return &response, nil
}
