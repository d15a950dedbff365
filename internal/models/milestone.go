package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Milestone statuses
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusSubmitted = "submitted"
	MilestoneStatusApproved  = "approved"
	MilestoneStatusRejected  = "rejected"
)

var ValidMilestoneTransitions = map[string][]string{
	MilestoneStatusPending:   {MilestoneStatusSubmitted},
	MilestoneStatusSubmitted: {MilestoneStatusApproved, MilestoneStatusRejected},
	MilestoneStatusRejected:  {MilestoneStatusSubmitted},
	MilestoneStatusApproved:  {},
}

func IsValidMilestoneTransition(from, to string) bool {
	return allowed(ValidMilestoneTransitions, from, to)
}

func MilestoneSourcesFor(to string) []string {
	return sourcesFor(ValidMilestoneTransitions, to)
}

type Milestone struct {
	ID                  uuid.UUID       `json:"id"`
	EscrowID            uuid.UUID       `json:"escrow_id"`
	Title               string          `json:"title"`
	Description         *string         `json:"description,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Percentage          decimal.Decimal `json:"percentage"`
	OrderIndex          int             `json:"order_index"`
	Status              string          `json:"status"`
	EvidenceDescription *string         `json:"evidence_description,omitempty"`
	EvidenceURL         *string         `json:"evidence_url,omitempty"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
	SubmittedBy         *uuid.UUID      `json:"submitted_by,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy          *uuid.UUID      `json:"approved_by,omitempty"`
	ReleasedAt          *time.Time      `json:"released_at,omitempty"`
	RejectionReason     *string         `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// MilestoneInput is one requested tranche at escrow creation.
type MilestoneInput struct {
	Title       string
	Description *string
	Percentage  decimal.Decimal
}

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.RequireFromString("0.01")
)

// PercentagesSumToHundred checks the sum against 100 with a 0.01 tolerance.
func PercentagesSumToHundred(inputs []MilestoneInput) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, in := range inputs {
		sum = sum.Add(in.Percentage)
	}
	return sum, sum.Sub(hundred).Abs().LessThanOrEqual(percentTolerance)
}

// BuildMilestones splits total into tranches, rounded to cents. The last
// tranche takes the rounding remainder so the amounts always add up to total.
func BuildMilestones(escrowID uuid.UUID, total decimal.Decimal, inputs []MilestoneInput) ([]Milestone, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one milestone is required")
	}

	out := make([]Milestone, 0, len(inputs))
	allocated := decimal.Zero
	for i, in := range inputs {
		amount := in.Percentage.Div(hundred).Mul(total).Round(2)
		if i == len(inputs)-1 {
			amount = total.Sub(allocated)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("milestone %d has a negative amount", i+1)
		}
		allocated = allocated.Add(amount)

		out = append(out, Milestone{
			ID:          uuid.New(),
			EscrowID:    escrowID,
			Title:       in.Title,
			Description: in.Description,
			Amount:      amount,
			Percentage:  in.Percentage,
			OrderIndex:  i + 1,
			Status:      MilestoneStatusPending,
		})
	}
	return out, nil
}
