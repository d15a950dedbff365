package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/config"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/rbac"
	"github.com/sme-lending/backend/internal/repositories"
	"go.uber.org/zap"
)

type AuthService struct {
	users UserStore
	cfg   *config.Config
	log   *zap.Logger
}

func NewAuthService(users UserStore, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{users: users, cfg: cfg, log: log}
}

type RegisterInput struct {
	Email    string
	Password string
	FullName *string
	Role     string
}

type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates an account. Admins are provisioned out of band.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email")
	}
	if len(in.Password) < auth.MinPasswordLen {
		return nil, apperr.Validation("password must be at least %d characters", auth.MinPasswordLen)
	}
	if !rbac.IsValidRole(in.Role) || in.Role == rbac.RoleAdmin {
		return nil, apperr.Validation("role must be one of sme, customer, lender")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Unexpected("hash password", err)
	}

	u := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     trimmed(in.FullName),
		Role:         in.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.Validation("email is already registered")
		}
		return nil, apperr.Storage("create user", err)
	}

	s.log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", u.Role))
	return s.session(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid email or password")
		}
		return nil, apperr.Storage("get user", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	if err := s.users.UpdateLastActive(ctx, u.ID); err != nil {
		s.log.Warn("failed to update last_active_at", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	return s.session(u)
}

func (s *AuthService) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fromStore("user", "get user", err)
	}
	return u, nil
}

func (s *AuthService) session(u *models.User) (*Session, error) {
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, auth.Principal{ID: u.ID, Email: u.Email, Role: u.Role}, s.cfg.JWTExpiration)
	if err != nil {
		return nil, apperr.Unexpected("issue token", err)
	}
	return &Session{Token: token, User: u}, nil
}
