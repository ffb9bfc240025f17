package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/middleware"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/reward"
)

type submitResponseRequest struct {
	SurveyID uint   `json:"survey_id" validate:"required,gt=0"`
	Provider string `json:"provider" validate:"required,oneof=mtn airtel"`
	Phone    string `json:"phone" validate:"omitempty,min=9,max=15"`
}

// HandleSubmitResponseAPI records a survey response for the authenticated
// respondent and triggers the reward payout. A denied reward still returns
// 201: the response exists, only the payout part was refused.
func HandleSubmitResponseAPI(c *fiber.Ctx) error {
	var body submitResponseRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	result, err := deps.Reward.SubmitResponse(reward.SubmitInput{
		SurveyID:     body.SurveyID,
		RespondentID: middleware.CurrentUserID(c),
		Provider:     body.Provider,
		Phone:        body.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, reward.ErrSurveyNotAccepting):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Survey is not accepting responses"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Survey not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not record response"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}
