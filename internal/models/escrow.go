package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow statuses
const (
	EscrowStatusDraft          = "draft"
	EscrowStatusInvited        = "invited"
	EscrowStatusPendingDeposit = "pending_deposit"
	EscrowStatusActive         = "active"
	EscrowStatusCompleted      = "completed"
)

// Valid escrow transitions: from -> []to
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusDraft:          {EscrowStatusInvited, EscrowStatusPendingDeposit},
	EscrowStatusInvited:        {EscrowStatusInvited, EscrowStatusPendingDeposit},
	EscrowStatusPendingDeposit: {EscrowStatusActive},
	EscrowStatusActive:         {EscrowStatusCompleted},
	EscrowStatusCompleted:      {},
}

func IsValidEscrowTransition(from, to string) bool {
	return allowed(ValidEscrowTransitions, from, to)
}

// EscrowSourcesFor returns every status that may move to the given status.
// Repositories use it to build conditional updates.
func EscrowSourcesFor(to string) []string {
	return sourcesFor(ValidEscrowTransitions, to)
}

type Escrow struct {
	ID                 uuid.UUID       `json:"id"`
	SMEID              uuid.UUID       `json:"sme_id"`
	CustomerID         *uuid.UUID      `json:"customer_id,omitempty"`
	CustomerEmail      string          `json:"customer_email"`
	ProjectName        string          `json:"project_name"`
	ProjectDescription *string         `json:"project_description,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	DepositedAmount    decimal.Decimal `json:"deposited_amount"`
	ReleasedAmount     decimal.Decimal `json:"released_amount"`
	Status             string          `json:"status"`
	InviteToken        string          `json:"invite_token,omitempty"`
	InviteSentAt       *time.Time      `json:"invite_sent_at,omitempty"`
	InviteAcceptedAt   *time.Time      `json:"invite_accepted_at,omitempty"`
	DepositDueDate     *time.Time      `json:"deposit_due_date,omitempty"`
	DepositedAt        *time.Time      `json:"deposited_at,omitempty"`
	PaymentReference   *string         `json:"payment_reference,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsParty reports whether the user is the SME or the accepted customer.
func (e *Escrow) IsParty(userID uuid.UUID) bool {
	return e.SMEID == userID || e.IsCustomer(userID)
}

func (e *Escrow) IsCustomer(userID uuid.UUID) bool {
	return e.CustomerID != nil && *e.CustomerID == userID
}

// Remaining is the deposited amount not yet released.
func (e *Escrow) Remaining() decimal.Decimal {
	return e.DepositedAmount.Sub(e.ReleasedAmount)
}

// Public hides the capability token for callers that only hold a reference.
func (e Escrow) Public() Escrow {
	e.InviteToken = ""
	return e
}

// EscrowWithMilestones is the joined view returned by detail endpoints.
type EscrowWithMilestones struct {
	Escrow
	Milestones []Milestone `json:"milestones"`
	Activities []Activity  `json:"activities,omitempty"`
}

func allowed(transitions map[string][]string, from, to string) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func sourcesFor(transitions map[string][]string, to string) []string {
	var out []string
	for from, next := range transitions {
		for _, s := range next {
			if s == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}
