package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan statuses
const (
	LoanStatusRequested = "requested"
	LoanStatusApproved  = "approved"
	LoanStatusRejected  = "rejected"
	LoanStatusFunded    = "funded"
	LoanStatusActive    = "active"
)

var ValidLoanTransitions = map[string][]string{
	LoanStatusRequested: {LoanStatusApproved, LoanStatusRejected, LoanStatusFunded},
	LoanStatusApproved:  {LoanStatusFunded},
	LoanStatusRejected:  {},
	LoanStatusFunded:    {LoanStatusActive},
	LoanStatusActive:    {},
}

func IsValidLoanTransition(from, to string) bool {
	return allowed(ValidLoanTransitions, from, to)
}

func LoanSourcesFor(to string) []string {
	return sourcesFor(ValidLoanTransitions, to)
}

type Loan struct {
	ID                 uuid.UUID       `json:"id"`
	SMEID              uuid.UUID       `json:"sme_id"`
	AssetID            uuid.UUID       `json:"asset_id"`
	LenderID           *uuid.UUID      `json:"lender_id,omitempty"`
	AmountRequested    decimal.Decimal `json:"amount_requested"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	Purpose            *string         `json:"purpose,omitempty"`
	Status             string          `json:"status"`
	DueDate            time.Time       `json:"due_date"`
	LenderNotes        *string         `json:"lender_notes,omitempty"`
	ApprovalConditions *string         `json:"approval_conditions,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy         *uuid.UUID      `json:"reviewed_by,omitempty"`
	FundedAt           *time.Time      `json:"funded_at,omitempty"`
	ChainTxHash        *string         `json:"chain_tx_hash,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LoanStatusChange is one row of loan_status_history.
type LoanStatusChange struct {
	ID         uuid.UUID `json:"id"`
	LoanID     uuid.UUID `json:"loan_id"`
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ActorID    uuid.UUID `json:"actor_id"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DueDateFor adds the loan term to the request time.
func DueDateFor(from time.Time, termMonths int) time.Time {
	return from.AddDate(0, termMonths, 0)
}
