package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sme-lending/backend/internal/http/dto"
	"github.com/sme-lending/backend/internal/middleware"
)

// Milestone routes live on EscrowHandler; milestones have no service of their own.

func (h *EscrowHandler) SubmitMilestone(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req dto.SubmitMilestoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	m, err := h.escrowService.SubmitMilestone(c.Context(), middleware.GetPrincipal(c), id, req.EvidenceDescription, req.EvidenceURL)
	if err != nil {
		return err
	}
	return respondOK(c, m)
}

func (h *EscrowHandler) ApproveMilestone(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	res, err := h.escrowService.ApproveMilestone(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, res)
}

func (h *EscrowHandler) RejectMilestone(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req dto.RejectMilestoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	m, err := h.escrowService.RejectMilestone(c.Context(), middleware.GetPrincipal(c), id, req.RejectionReason)
	if err != nil {
		return err
	}
	return respondOK(c, m)
}
