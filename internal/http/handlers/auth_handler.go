package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sme-lending/backend/internal/http/dto"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	sess, err := h.authService.Register(c.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	return respondCreated(c, sess)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	sess, err := h.authService.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Debug("login rejected", zap.String("email", req.Email), zap.Error(err))
		return err
	}

	return respondOK(c, sess)
}
