package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow activity types
const (
	ActivityEscrowCreated      = "escrow_created"
	ActivityInviteSent         = "invite_sent"
	ActivityInviteAccepted     = "invite_accepted"
	ActivityFundsDeposited     = "funds_deposited"
	ActivityMilestoneSubmitted = "milestone_submitted"
	ActivityMilestoneApproved  = "milestone_approved"
	ActivityMilestoneRejected  = "milestone_rejected"
	ActivityEscrowCompleted    = "escrow_completed"
)

// Activity is an append-only audit entry of the escrow_activities table.
type Activity struct {
	ID          uuid.UUID      `json:"id"`
	EscrowID    uuid.UUID      `json:"escrow_id"`
	MilestoneID *uuid.UUID     `json:"milestone_id,omitempty"`
	UserID      uuid.UUID      `json:"user_id"`
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
