package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/middleware"
)

type createWebhookRequest struct {
	EndpointURL string   `json:"endpoint_url" validate:"required,url"`
	Secret      string   `json:"secret" validate:"omitempty,min=16,max=128"`
	Events      []string `json:"events" validate:"omitempty,dive,min=1"`
}

// HandleCreateWebhookAPI registers a webhook endpoint on a survey. Owner only.
func HandleCreateWebhookAPI(c *fiber.Ctx) error {
	survey, ok := ownedSurveyFromParams(c)
	if !ok {
		return nil // response already written
	}

	var body createWebhookRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	reg := &models.WebhookRegistration{
		SurveyID:    survey.ID,
		EndpointURL: body.EndpointURL,
		Secret:      body.Secret,
		IsActive:    true,
	}
	reg.SetSubscribedEvents(body.Events)

	if err := repository.GetGlobalFactory().GetWebhookRepository().Create(reg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not create webhook"})
	}
	return c.Status(fiber.StatusCreated).JSON(reg)
}

// HandleListWebhooksAPI lists all webhook registrations of a survey,
// including deactivated ones so the owner can see what needs re-enabling.
func HandleListWebhooksAPI(c *fiber.Ctx) error {
	survey, ok := ownedSurveyFromParams(c)
	if !ok {
		return nil
	}

	regs, err := repository.GetGlobalFactory().GetWebhookRepository().ListBySurvey(survey.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load webhooks"})
	}
	return c.JSON(fiber.Map{"webhooks": regs})
}

// HandleActivateWebhookAPI re-enables a registration that was deactivated
// after repeated delivery failures and clears its failure counter.
// Re-activation is deliberate and manual; nothing re-enables endpoints
// automatically.
func HandleActivateWebhookAPI(c *fiber.Ctx) error {
	webhookID, err := c.ParamsInt("id")
	if err != nil || webhookID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid webhook id"})
	}

	repos := repository.GetGlobalFactory().GetRepositories()
	reg, err := repos.Webhook.GetByID(uint(webhookID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Webhook not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load webhook"})
	}

	if !ownsSurvey(c, repos.Survey, reg.SurveyID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Webhook not found"})
	}

	if err := repos.Webhook.Activate(reg.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not activate webhook"})
	}

	reg.IsActive = true
	reg.ConsecutiveFailures = 0
	return c.JSON(reg)
}

// ownedSurveyFromParams loads the survey from :id and checks ownership. On
// failure the HTTP response is already written and ok is false.
func ownedSurveyFromParams(c *fiber.Ctx) (*models.Survey, bool) {
	surveyID, err := c.ParamsInt("id")
	if err != nil || surveyID <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid survey id"})
		return nil, false
	}

	surveys := repository.GetGlobalFactory().GetSurveyRepository()
	survey, err := surveys.GetByID(uint(surveyID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Survey not found"})
		} else {
			_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load survey"})
		}
		return nil, false
	}

	userID := middleware.CurrentUserID(c)
	role, _ := c.Locals(middleware.KeyUserRole).(string)
	if survey.OwnerID != userID && role != models.ROLE_ADMIN {
		_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Survey not found"})
		return nil, false
	}
	return survey, true
}

func ownsSurvey(c *fiber.Ctx, surveys repository.SurveyRepository, surveyID uint) bool {
	survey, err := surveys.GetByID(surveyID)
	if err != nil {
		return false
	}
	if role, _ := c.Locals(middleware.KeyUserRole).(string); role == models.ROLE_ADMIN {
		return true
	}
	return survey.OwnerID == middleware.CurrentUserID(c)
}
