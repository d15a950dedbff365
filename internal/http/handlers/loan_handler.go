package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/http/dto"
	"github.com/sme-lending/backend/internal/middleware"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

type LoanHandler struct {
	loanService *services.LoanService
	log         *zap.Logger
}

func NewLoanHandler(loanService *services.LoanService, log *zap.Logger) *LoanHandler {
	return &LoanHandler{loanService: loanService, log: log}
}

func (h *LoanHandler) RequestLoan(c *fiber.Ctx) error {
	var req dto.RequestLoanRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		return apperr.Validation("asset_id must be a uuid")
	}

	loan, err := h.loanService.Request(c.Context(), middleware.GetPrincipal(c), services.RequestLoanInput{
		AssetID:         assetID,
		AmountRequested: req.AmountRequested,
		InterestRate:    req.InterestRate,
		TermMonths:      req.TermMonths,
		Purpose:         req.Purpose,
	})
	if err != nil {
		return err
	}
	return respondCreated(c, loan)
}

func (h *LoanHandler) ListLoans(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	loans, err := h.loanService.List(c.Context(), middleware.GetPrincipal(c), optionalQuery(c, "status"), limit, offset)
	if err != nil {
		return err
	}
	return respondOK(c, dto.ListResponse{Items: loans, Limit: limit, Offset: offset})
}

func (h *LoanHandler) GetLoan(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	loan, err := h.loanService.Get(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, loan)
}

func (h *LoanHandler) History(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	history, err := h.loanService.History(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, history)
}

func (h *LoanHandler) FundLoan(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	loan, err := h.loanService.Fund(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}

	h.log.Info("loan funded", zap.String("loan_id", id.String()), zap.String("amount", loan.AmountRequested.String()))
	return respondOK(c, loan)
}

func (h *LoanHandler) ApproveLoan(c *fiber.Ctx) error {
	return h.review(c, h.loanService.Approve)
}

func (h *LoanHandler) RejectLoan(c *fiber.Ctx) error {
	return h.review(c, h.loanService.Reject)
}

type reviewFunc func(ctx context.Context, actor *auth.Principal, id uuid.UUID, in services.ReviewLoanInput) (*models.Loan, error)

func (h *LoanHandler) review(c *fiber.Ctx, apply reviewFunc) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req dto.ReviewLoanRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	loan, err := apply(c.Context(), middleware.GetPrincipal(c), id, services.ReviewLoanInput{
		Notes:      req.Notes,
		Conditions: req.Conditions,
	})
	if err != nil {
		return err
	}
	return respondOK(c, loan)
}
