// Package oracle holds the tokenization ledger adapters and the asset
// verification rules.
package oracle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("oracle is not configured")

type TokenizeRequest struct {
	AssetID     uuid.UUID       `json:"asset_id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
}

type TokenizeResult struct {
	ChainAssetID string `json:"chain_asset_id"`
	TxHash       string `json:"tx_hash"`
	BlockNumber  int64  `json:"block_number"`
}

type LoanRecord struct {
	LoanID     uuid.UUID       `json:"loan_id"`
	AssetID    uuid.UUID       `json:"asset_id"`
	BorrowerID uuid.UUID       `json:"borrower_id"`
	Amount     decimal.Decimal `json:"amount"`
	TermMonths int             `json:"term_months"`
}

type LoanFunding struct {
	LoanID   uuid.UUID       `json:"loan_id"`
	LenderID uuid.UUID       `json:"lender_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
}

// Ledger is the external tokenization service. Every call may be slow and is
// expected to run from background jobs.
type Ledger interface {
	TokenizeAsset(ctx context.Context, req TokenizeRequest) (*TokenizeResult, error)
	NotifyVerification(ctx context.Context, chainAssetID string, v Verdict) (*Receipt, error)
	RecordLoan(ctx context.Context, rec LoanRecord) (*Receipt, error)
	FundLoan(ctx context.Context, f LoanFunding) (*Receipt, error)
}
