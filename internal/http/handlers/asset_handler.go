package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sme-lending/backend/internal/http/dto"
	"github.com/sme-lending/backend/internal/middleware"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

type AssetHandler struct {
	assetService        *services.AssetService
	verificationService *services.VerificationService
	log                 *zap.Logger
}

func NewAssetHandler(assetService *services.AssetService, verificationService *services.VerificationService, log *zap.Logger) *AssetHandler {
	return &AssetHandler{assetService: assetService, verificationService: verificationService, log: log}
}

// CreateAsset answers with the pending asset; tokenization finishes in the background.
func (h *AssetHandler) CreateAsset(c *fiber.Ctx) error {
	var req dto.CreateAssetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	asset, err := h.assetService.Create(c.Context(), middleware.GetPrincipal(c), services.CreateAssetInput{
		Type:        req.Type,
		Value:       req.Value,
		Description: req.Description,
		AssetName:   req.AssetName,
	})
	if err != nil {
		return err
	}
	return respondCreated(c, asset)
}

func (h *AssetHandler) ListAssets(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	assets, err := h.assetService.List(c.Context(), middleware.GetPrincipal(c), limit, offset)
	if err != nil {
		return err
	}
	return respondOK(c, dto.ListResponse{Items: assets, Limit: limit, Offset: offset})
}

func (h *AssetHandler) GetAsset(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	asset, err := h.assetService.Get(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, asset)
}

func (h *AssetHandler) VerifyAsset(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	res, err := h.verificationService.VerifyAsset(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, res)
}

func (h *AssetHandler) VerificationLogs(c *fiber.Ctx) error {
	id, err := paramUUID(c, "assetId")
	if err != nil {
		return err
	}

	logs, err := h.verificationService.Logs(c.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return respondOK(c, logs)
}
