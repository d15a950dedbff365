package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/sme-lending/backend/internal/rbac"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaAssetType struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	MinValue decimal.Decimal `json:"min_value"`
	MaxValue decimal.Decimal `json:"max_value"`
}

type MetaRole struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var assetTypeLabels = map[string]string{
	models.AssetTypeDeposit:       "Fixed deposit",
	models.AssetTypePurchaseOrder: "Purchase order",
	models.AssetTypeInvoice:       "Invoice",
}

var registrableRoles = []MetaRole{
	{ID: rbac.RoleSME, Label: "Small business"},
	{ID: rbac.RoleCustomer, Label: "Customer"},
	{ID: rbac.RoleLender, Label: "Lender"},
}

// GetAssetTypes lists the asset types with the value range verification accepts.
func (h *MetaHandler) GetAssetTypes(c *fiber.Ctx) error {
	out := make([]MetaAssetType, 0, len(models.AllAssetTypes))
	for _, t := range models.AllAssetTypes {
		lo, hi, _ := oracle.ValueRange(t)
		out = append(out, MetaAssetType{ID: t, Label: assetTypeLabels[t], MinValue: lo, MaxValue: hi})
	}
	return respondOK(c, out)
}

func (h *MetaHandler) GetRoles(c *fiber.Ctx) error {
	return respondOK(c, registrableRoles)
}
