package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/middleware"
)

// HandleGetPayoutAPI returns the newest payout request for a response.
// Visible to the respondent who earned it, the survey owner and admins.
func HandleGetPayoutAPI(c *fiber.Ctx) error {
	responseID, err := c.ParamsInt("responseId")
	if err != nil || responseID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid response id"})
	}

	repos := repository.GetGlobalFactory().GetRepositories()
	req, err := repos.Payout.GetByResponseID(uint(responseID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No payout for this response"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load payout"})
	}

	if !mayViewPayout(c, req, repos.Survey) {
		// Do not leak existence
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No payout for this response"})
	}

	return c.JSON(req)
}

func mayViewPayout(c *fiber.Ctx, req *models.PayoutRequest, surveys repository.SurveyRepository) bool {
	userID := middleware.CurrentUserID(c)
	if req.RespondentID == userID {
		return true
	}
	if role, _ := c.Locals(middleware.KeyUserRole).(string); role == models.ROLE_ADMIN {
		return true
	}
	survey, err := surveys.GetByID(req.SurveyID)
	return err == nil && survey.OwnerID == userID
}
