package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/config"
	"github.com/sme-lending/backend/internal/events"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/repositories"
	"go.uber.org/zap"
)

const recentActivityLimit = 20

type EscrowService struct {
	escrows    EscrowStore
	activities ActivityStore
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewEscrowService(
	escrows EscrowStore,
	activities ActivityStore,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		escrows:    escrows,
		activities: activities,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

type CreateEscrowInput struct {
	ProjectName        string
	ProjectDescription *string
	CustomerEmail      string
	TotalAmount        decimal.Decimal
	DepositDueDate     *time.Time
	Milestones         []models.MilestoneInput
}

func (in CreateEscrowInput) validate() error {
	if strings.TrimSpace(in.ProjectName) == "" {
		return apperr.Validation("project_name is required")
	}
	if !strings.Contains(in.CustomerEmail, "@") {
		return apperr.Validation("customer_email is invalid")
	}
	if !in.TotalAmount.IsPositive() {
		return apperr.Validation("total_amount must be positive")
	}
	if len(in.Milestones) == 0 {
		return apperr.Validation("at least one milestone is required")
	}
	for i, m := range in.Milestones {
		if strings.TrimSpace(m.Title) == "" {
			return apperr.Validation("milestone %d: title is required", i+1)
		}
		if !m.Percentage.IsPositive() {
			return apperr.Validation("milestone %d: percentage must be positive", i+1)
		}
	}
	if sum, ok := models.PercentagesSumToHundred(in.Milestones); !ok {
		return apperr.Validation("milestone percentages must sum to 100, got %s", sum.String())
	}
	return nil
}

// Create persists a draft escrow with its milestones. Nothing is written when
// validation fails.
func (s *EscrowService) Create(ctx context.Context, actor *auth.Principal, in CreateEscrowInput) (*models.EscrowWithMilestones, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, apperr.Unexpected("generate invite token", err)
	}

	e := &models.Escrow{
		ID:                 uuid.New(),
		SMEID:              actor.ID,
		CustomerEmail:      strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		ProjectName:        strings.TrimSpace(in.ProjectName),
		ProjectDescription: in.ProjectDescription,
		TotalAmount:        in.TotalAmount,
		Status:             models.EscrowStatusDraft,
		InviteToken:        token,
		DepositDueDate:     in.DepositDueDate,
	}

	milestones, err := models.BuildMilestones(e.ID, e.TotalAmount, in.Milestones)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	act := models.Activity{
		EscrowID:    e.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityEscrowCreated,
		Description: fmt.Sprintf("Escrow %q created with %d milestones", e.ProjectName, len(milestones)),
		Metadata: map[string]any{
			"total_amount":    e.TotalAmount.String(),
			"milestone_count": len(milestones),
		},
	}

	if err := s.escrows.CreateWithMilestones(ctx, e, milestones, act); err != nil {
		return nil, apperr.Storage("create escrow", err)
	}

	s.log.Info("escrow created",
		zap.String("escrow_id", e.ID.String()),
		zap.String("sme_id", actor.ID.String()),
		zap.String("total_amount", e.TotalAmount.String()),
	)
	s.publish(ctx, e, act)

	return &models.EscrowWithMilestones{Escrow: *e, Milestones: milestones}, nil
}

type InviteResult struct {
	Escrow    models.Escrow `json:"escrow"`
	InviteURL string        `json:"invite_url"`
}

func (s *EscrowService) SendInvite(ctx context.Context, actor *auth.Principal, escrowID uuid.UUID) (*InviteResult, error) {
	e, err := s.loadEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if e.SMEID != actor.ID {
		return nil, apperr.AccessDenied("only the escrow owner can send the invite")
	}
	if !models.IsValidEscrowTransition(e.Status, models.EscrowStatusInvited) {
		return nil, apperr.InvalidState("invite can only be sent before it is accepted", e.Status)
	}

	act := models.Activity{
		EscrowID:    e.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityInviteSent,
		Description: "Invite sent to " + e.CustomerEmail,
		Metadata:    map[string]any{"customer_email": e.CustomerEmail},
	}
	updated, err := s.escrows.MarkInvited(ctx, e.ID, act)
	if err != nil {
		return nil, s.escrowWriteErr(ctx, e.ID, "invite can only be sent before it is accepted", err)
	}

	s.publish(ctx, updated, act)
	return &InviteResult{Escrow: *updated, InviteURL: s.cfg.InviteURL(updated.InviteToken)}, nil
}

// GetByToken is the unauthenticated invite view; the token is the capability.
func (s *EscrowService) GetByToken(ctx context.Context, token string) (*models.EscrowWithMilestones, error) {
	if token == "" {
		return nil, apperr.NotFound("escrow")
	}
	e, err := s.escrows.GetByToken(ctx, token)
	if err != nil {
		return nil, fromStore("escrow", "get escrow by token", err)
	}
	ms, err := s.escrows.ListMilestones(ctx, e.ID)
	if err != nil {
		return nil, apperr.Storage("list milestones", err)
	}
	return &models.EscrowWithMilestones{Escrow: e.Public(), Milestones: ms}, nil
}

func (s *EscrowService) ListPendingInvites(ctx context.Context, actor *auth.Principal) ([]models.Escrow, error) {
	escrows, err := s.escrows.ListPendingInvites(ctx, actor.Email)
	if err != nil {
		return nil, apperr.Storage("list pending invites", err)
	}
	return escrows, nil
}

// Get returns the escrow with milestones and recent activity to either party.
func (s *EscrowService) Get(ctx context.Context, actor *auth.Principal, escrowID uuid.UUID) (*models.EscrowWithMilestones, error) {
	e, err := s.loadForParty(ctx, actor, escrowID)
	if err != nil {
		return nil, err
	}
	ms, err := s.escrows.ListMilestones(ctx, e.ID)
	if err != nil {
		return nil, apperr.Storage("list milestones", err)
	}
	acts, err := s.activities.ListByEscrow(ctx, e.ID, recentActivityLimit, 0)
	if err != nil {
		return nil, apperr.Storage("list activities", err)
	}
	return &models.EscrowWithMilestones{Escrow: s.viewFor(actor, e), Milestones: ms, Activities: acts}, nil
}

func (s *EscrowService) List(ctx context.Context, actor *auth.Principal, as string, status *string, limit, offset int) ([]models.Escrow, error) {
	if as != "" && as != "sme" && as != "customer" {
		return nil, apperr.Validation("role filter must be sme or customer")
	}
	escrows, err := s.escrows.List(ctx, repositories.EscrowFilter{
		UserID: actor.ID,
		As:     as,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, apperr.Storage("list escrows", err)
	}
	for i := range escrows {
		escrows[i] = s.viewFor(actor, &escrows[i])
	}
	return escrows, nil
}

func (s *EscrowService) Activities(ctx context.Context, actor *auth.Principal, escrowID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	if _, err := s.loadForParty(ctx, actor, escrowID); err != nil {
		return nil, err
	}
	acts, err := s.activities.ListByEscrow(ctx, escrowID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list activities", err)
	}
	return acts, nil
}

// AcceptInvite binds the caller as customer. It is deliberately not
// idempotent: a second acceptance fails with InvalidState.
func (s *EscrowService) AcceptInvite(ctx context.Context, actor *auth.Principal, token string) (*models.Escrow, error) {
	e, err := s.escrows.GetByToken(ctx, token)
	if err != nil {
		return nil, fromStore("escrow", "get escrow by token", err)
	}
	if !strings.EqualFold(strings.TrimSpace(actor.Email), e.CustomerEmail) {
		return nil, apperr.AccessDenied("invitation sent to a different email")
	}
	if e.CustomerID != nil || !models.IsValidEscrowTransition(e.Status, models.EscrowStatusPendingDeposit) {
		return nil, apperr.InvalidState("invitation already accepted", e.Status)
	}

	act := models.Activity{
		EscrowID:    e.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityInviteAccepted,
		Description: actor.Email + " accepted the invite",
	}
	updated, err := s.escrows.Accept(ctx, e.ID, actor.ID, act)
	if err != nil {
		return nil, s.escrowWriteErr(ctx, e.ID, "invitation already accepted", err)
	}

	s.publish(ctx, updated, act)
	view := s.viewFor(actor, updated)
	return &view, nil
}

// Deposit records the customer's deposit of the full escrow amount. Callers
// that are not the customer get NotFound so existence is not leaked.
func (s *EscrowService) Deposit(ctx context.Context, actor *auth.Principal, escrowID uuid.UUID, paymentRef *string) (*models.Escrow, error) {
	e, err := s.loadEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !e.IsCustomer(actor.ID) {
		return nil, apperr.NotFound("escrow")
	}
	if e.Status != models.EscrowStatusPendingDeposit {
		return nil, apperr.InvalidState("escrow is not awaiting a deposit", e.Status)
	}

	act := models.Activity{
		EscrowID:    e.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityFundsDeposited,
		Description: "Deposited " + e.TotalAmount.StringFixed(2),
		Metadata:    map[string]any{"amount": e.TotalAmount.String()},
	}
	if paymentRef != nil {
		act.Metadata["payment_reference"] = *paymentRef
	}
	updated, err := s.escrows.MarkDeposited(ctx, e.ID, actor.ID, paymentRef, act)
	if err != nil {
		return nil, s.escrowWriteErr(ctx, e.ID, "escrow is not awaiting a deposit", err)
	}

	s.log.Info("escrow funded", zap.String("escrow_id", e.ID.String()), zap.String("amount", updated.DepositedAmount.String()))
	s.publish(ctx, updated, act)
	view := s.viewFor(actor, updated)
	return &view, nil
}

func (s *EscrowService) SubmitMilestone(ctx context.Context, actor *auth.Principal, milestoneID uuid.UUID, evidence string, evidenceURL *string) (*models.Milestone, error) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return nil, apperr.Validation("evidence_description is required")
	}

	m, e, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if e.SMEID != actor.ID {
		return nil, apperr.AccessDenied("only the escrow owner can submit milestones")
	}
	if !models.IsValidMilestoneTransition(m.Status, models.MilestoneStatusSubmitted) {
		return nil, apperr.InvalidState("milestone cannot be submitted", m.Status)
	}

	act := models.Activity{
		EscrowID:    e.ID,
		MilestoneID: &m.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityMilestoneSubmitted,
		Description: fmt.Sprintf("Milestone %d %q submitted for review", m.OrderIndex, m.Title),
		Metadata:    map[string]any{"resubmission": m.Status == models.MilestoneStatusRejected},
	}
	updated, err := s.escrows.SubmitMilestone(ctx, m.ID, actor.ID, evidence, evidenceURL, act)
	if err != nil {
		return nil, s.milestoneWriteErr(ctx, m.ID, "milestone cannot be submitted", err)
	}

	s.publish(ctx, e, act)
	return updated, nil
}

type MilestoneApproval struct {
	Milestone models.Milestone `json:"milestone"`
	Escrow    models.Escrow    `json:"escrow"`
}

// ApproveMilestone releases the milestone amount to the SME.
func (s *EscrowService) ApproveMilestone(ctx context.Context, actor *auth.Principal, milestoneID uuid.UUID) (*MilestoneApproval, error) {
	m, e, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !e.IsCustomer(actor.ID) {
		return nil, apperr.AccessDenied("only the escrow customer can approve milestones")
	}
	if m.Status != models.MilestoneStatusSubmitted {
		return nil, apperr.InvalidState("milestone is not awaiting approval", m.Status)
	}
	if e.Status != models.EscrowStatusActive {
		return nil, apperr.InvalidState("escrow is not funded", e.Status)
	}

	var acts []models.Activity
	approvedM, updated, err := s.escrows.ApproveMilestone(ctx, m.ID, actor.ID,
		func(am *models.Milestone, ue *models.Escrow) []models.Activity {
			acts = []models.Activity{{
				EscrowID:    ue.ID,
				MilestoneID: &am.ID,
				UserID:      actor.ID,
				ActionType:  models.ActivityMilestoneApproved,
				Description: fmt.Sprintf("Milestone %d approved, released %s", am.OrderIndex, am.Amount.StringFixed(2)),
				Metadata: map[string]any{
					"released_amount":       am.Amount.String(),
					"total_released_amount": ue.ReleasedAmount.String(),
				},
			}}
			if ue.Status == models.EscrowStatusCompleted {
				acts = append(acts, models.Activity{
					EscrowID:    ue.ID,
					UserID:      actor.ID,
					ActionType:  models.ActivityEscrowCompleted,
					Description: "All milestones approved, escrow completed",
					Metadata:    map[string]any{"released_amount": ue.ReleasedAmount.String()},
				})
			}
			return acts
		})
	if err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			return nil, apperr.Storage("approve milestone", err)
		}
		cur, _, lerr := s.loadMilestone(ctx, m.ID)
		if lerr != nil {
			return nil, lerr
		}
		if cur.Status != models.MilestoneStatusSubmitted {
			return nil, apperr.InvalidState("milestone is not awaiting approval", cur.Status)
		}
		return nil, s.escrowWriteErr(ctx, e.ID, "escrow cannot release this amount", err)
	}

	s.log.Info("milestone approved",
		zap.String("escrow_id", updated.ID.String()),
		zap.String("milestone_id", approvedM.ID.String()),
		zap.String("released", approvedM.Amount.String()),
		zap.String("total_released", updated.ReleasedAmount.String()),
	)
	for _, a := range acts {
		s.publish(ctx, updated, a)
	}
	return &MilestoneApproval{Milestone: *approvedM, Escrow: s.viewFor(actor, updated)}, nil
}

func (s *EscrowService) RejectMilestone(ctx context.Context, actor *auth.Principal, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("rejection_reason is required")
	}

	m, e, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !e.IsCustomer(actor.ID) {
		return nil, apperr.AccessDenied("only the escrow customer can reject milestones")
	}
	if !models.IsValidMilestoneTransition(m.Status, models.MilestoneStatusRejected) {
		return nil, apperr.InvalidState("only submitted milestones can be rejected", m.Status)
	}

	act := models.Activity{
		EscrowID:    e.ID,
		MilestoneID: &m.ID,
		UserID:      actor.ID,
		ActionType:  models.ActivityMilestoneRejected,
		Description: fmt.Sprintf("Milestone %d rejected", m.OrderIndex),
		Metadata:    map[string]any{"reason": reason},
	}
	updated, err := s.escrows.RejectMilestone(ctx, m.ID, reason, act)
	if err != nil {
		return nil, s.milestoneWriteErr(ctx, m.ID, "only submitted milestones can be rejected", err)
	}

	s.publish(ctx, e, act)
	return updated, nil
}

// ---- helpers ----

func (s *EscrowService) loadEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	e, err := s.escrows.GetByID(ctx, id)
	if err != nil {
		return nil, fromStore("escrow", "get escrow", err)
	}
	return e, nil
}

func (s *EscrowService) loadForParty(ctx context.Context, actor *auth.Principal, id uuid.UUID) (*models.Escrow, error) {
	e, err := s.loadEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsParty(actor.ID) {
		return nil, apperr.AccessDenied("not a party to this escrow")
	}
	return e, nil
}

func (s *EscrowService) loadMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, *models.Escrow, error) {
	m, err := s.escrows.GetMilestone(ctx, id)
	if err != nil {
		return nil, nil, fromStore("milestone", "get milestone", err)
	}
	e, err := s.loadEscrow(ctx, m.EscrowID)
	if err != nil {
		return nil, nil, err
	}
	return m, e, nil
}

// viewFor hides the invite token from everyone but the owner.
func (s *EscrowService) viewFor(actor *auth.Principal, e *models.Escrow) models.Escrow {
	if e.SMEID == actor.ID {
		return *e
	}
	return e.Public()
}

func (s *EscrowService) escrowWriteErr(ctx context.Context, id uuid.UUID, msg string, err error) error {
	if !errors.Is(err, repositories.ErrConflict) {
		return apperr.Storage("update escrow", err)
	}
	cur, lerr := s.loadEscrow(ctx, id)
	if lerr != nil {
		return lerr
	}
	return apperr.InvalidState(msg, cur.Status)
}

func (s *EscrowService) milestoneWriteErr(ctx context.Context, id uuid.UUID, msg string, err error) error {
	if !errors.Is(err, repositories.ErrConflict) {
		return apperr.Storage("update milestone", err)
	}
	cur, _, lerr := s.loadMilestone(ctx, id)
	if lerr != nil {
		return lerr
	}
	return apperr.InvalidState(msg, cur.Status)
}

func (s *EscrowService) publish(ctx context.Context, e *models.Escrow, act models.Activity) {
	recipients := []uuid.UUID{e.SMEID}
	if e.CustomerID != nil {
		recipients = append(recipients, *e.CustomerID)
	}
	payload := map[string]any{
		"escrow_id":       e.ID.String(),
		"status":          e.Status,
		"action_type":     act.ActionType,
		"description":     act.Description,
		"released_amount": e.ReleasedAmount.String(),
	}
	if act.MilestoneID != nil {
		payload["milestone_id"] = act.MilestoneID.String()
	}
	_ = s.publisher.Publish(ctx, events.ChannelEscrow, events.Event{
		Type:       events.EventEscrowActivity,
		Recipients: recipients,
		Payload:    payload,
	})
}
