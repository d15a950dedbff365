package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Asset types
const (
	AssetTypeDeposit       = "deposit"
	AssetTypePurchaseOrder = "purchase_order"
	AssetTypeInvoice       = "invoice"
)

var AllAssetTypes = []string{AssetTypeDeposit, AssetTypePurchaseOrder, AssetTypeInvoice}

func IsValidAssetType(t string) bool {
	for _, at := range AllAssetTypes {
		if at == t {
			return true
		}
	}
	return false
}

// Asset statuses
const (
	AssetStatusPending            = "pending"
	AssetStatusVerified           = "verified"
	AssetStatusVerificationFailed = "verification_failed"
	AssetStatusError              = "error"
)

const MinAssetDescriptionLen = 10

type Asset struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Type               string          `json:"type"`
	Value              decimal.Decimal `json:"value"`
	Description        string          `json:"description"`
	AssetName          *string         `json:"asset_name,omitempty"`
	Status             string          `json:"status"`
	BlockchainAssetID  *string         `json:"blockchain_asset_id,omitempty"`
	TransactionHash    *string         `json:"transaction_hash,omitempty"`
	BlockNumber        *int64          `json:"block_number,omitempty"`
	VerificationStatus *string         `json:"verification_status,omitempty"`
	VerificationData   map[string]any  `json:"verification_data,omitempty"`
	VerifiedAt         *time.Time      `json:"verified_at,omitempty"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsTokenized reports whether the chain identifiers are already recorded.
func (a *Asset) IsTokenized() bool {
	return a.BlockchainAssetID != nil && *a.BlockchainAssetID != ""
}

// VerificationLog is an append-only record of one oracle invocation.
type VerificationLog struct {
	ID           uuid.UUID       `json:"id"`
	AssetID      uuid.UUID       `json:"asset_id"`
	Method       string          `json:"method"`
	Verdict      string          `json:"verdict"`
	Confidence   float64         `json:"confidence"`
	RiskLevel    string          `json:"risk_level"`
	Checks       map[string]bool `json:"checks"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
