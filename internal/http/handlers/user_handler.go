package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sme-lending/backend/internal/middleware"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewUserHandler(authService *services.AuthService, log *zap.Logger) *UserHandler {
	return &UserHandler{authService: authService, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.authService.Me(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return respondOK(c, user)
}
