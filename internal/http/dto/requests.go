package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auth

type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Role     string  `json:"role" validate:"required,oneof=sme customer lender"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Escrow

type MilestoneRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	Percentage  decimal.Decimal `json:"percentage"`
}

type CreateEscrowRequest struct {
	ProjectName        string             `json:"project_name" validate:"required,max=200"`
	ProjectDescription *string            `json:"project_description,omitempty" validate:"omitempty,max=5000"`
	CustomerEmail      string             `json:"customer_email" validate:"required,email"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	DepositDueDate     *time.Time         `json:"deposit_due_date,omitempty"`
	Milestones         []MilestoneRequest `json:"milestones" validate:"required,min=1,max=50,dive"`
}

type DepositRequest struct {
	PaymentReference *string `json:"payment_reference,omitempty" validate:"omitempty,max=200"`
}

type SubmitMilestoneRequest struct {
	EvidenceDescription string  `json:"evidence_description" validate:"required,max=5000"`
	EvidenceURL         *string `json:"evidence_url,omitempty" validate:"omitempty,url"`
}

type RejectMilestoneRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"required,max=2000"`
}

// Assets

type CreateAssetRequest struct {
	Type        string          `json:"type" validate:"required,oneof=deposit purchase_order invoice"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description" validate:"required,min=10,max=5000"`
	AssetName   *string         `json:"asset_name,omitempty" validate:"omitempty,max=200"`
}

// Loans

type RequestLoanRequest struct {
	AssetID         string          `json:"asset_id" validate:"required,uuid"`
	AmountRequested decimal.Decimal `json:"amount_requested"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
	TermMonths      int             `json:"term_months" validate:"required,gt=0,lte=360"`
	Purpose         *string         `json:"purpose,omitempty" validate:"omitempty,max=2000"`
}

type ReviewLoanRequest struct {
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Conditions *string `json:"conditions,omitempty" validate:"omitempty,max=2000"`
}
