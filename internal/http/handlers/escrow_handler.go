package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/http/dto"
	"github.com/sme-lending/backend/internal/middleware"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

func (h *EscrowHandler) CreateEscrow(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	in := services.CreateEscrowInput{
		ProjectName:        req.ProjectName,
		ProjectDescription: req.ProjectDescription,
		CustomerEmail:      req.CustomerEmail,
		TotalAmount:        req.TotalAmount,
		DepositDueDate:     req.DepositDueDate,
		Milestones:         make([]models.MilestoneInput, len(req.Milestones)),
	}
	for i, m := range req.Milestones {
		in.Milestones[i] = models.MilestoneInput{Title: m.Title, Description: m.Description, Percentage: m.Percentage}
	}

	escrow, err := h.escrowService.Create(c.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		return err
	}
	return respondCreated(c, escrow)
}

func (h *EscrowHandler) SendInvite(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	res, err := h.escrowService.SendInvite(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, res)
}

// GetByToken is public: the invite token is the capability.
func (h *EscrowHandler) GetByToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return apperr.Validation("token is required")
	}

	escrow, err := h.escrowService.GetByToken(c.Context(), token)
	if err != nil {
		return err
	}
	return respondOK(c, escrow)
}

func (h *EscrowHandler) ListInvites(c *fiber.Ctx) error {
	invites, err := h.escrowService.ListPendingInvites(c.Context(), middleware.GetPrincipal(c))
	if err != nil {
		return err
	}
	return respondOK(c, invites)
}

func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	escrow, err := h.escrowService.Get(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, escrow)
}

// ListEscrows accepts ?role=sme|customer, ?status= and pagination.
func (h *EscrowHandler) ListEscrows(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	escrows, err := h.escrowService.List(c.Context(), middleware.GetPrincipal(c),
		c.Query("role"), optionalQuery(c, "status"), limit, offset)
	if err != nil {
		return err
	}
	return respondOK(c, dto.ListResponse{Items: escrows, Limit: limit, Offset: offset})
}

func (h *EscrowHandler) ListActivities(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	acts, err := h.escrowService.Activities(c.Context(), middleware.GetPrincipal(c), id, limit, offset)
	if err != nil {
		return err
	}
	return respondOK(c, dto.ListResponse{Items: acts, Limit: limit, Offset: offset})
}

func (h *EscrowHandler) AcceptInvite(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return apperr.Validation("token is required")
	}

	escrow, err := h.escrowService.AcceptInvite(c.Context(), middleware.GetPrincipal(c), token)
	if err != nil {
		return err
	}
	return respondOK(c, escrow)
}

func (h *EscrowHandler) Deposit(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req dto.DepositRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	escrow, err := h.escrowService.Deposit(c.Context(), middleware.GetPrincipal(c), id, req.PaymentReference)
	if err != nil {
		return err
	}
	return respondOK(c, escrow)
}
