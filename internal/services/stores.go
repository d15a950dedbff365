package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/jobs"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/repositories"
)

// EscrowStore is implemented by repositories.EscrowRepo. Guarded mutations
// return repositories.ErrConflict when the row is no longer in a source state.
type EscrowStore interface {
	CreateWithMilestones(ctx context.Context, e *models.Escrow, ms []models.Milestone, act models.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetByToken(ctx context.Context, token string) (*models.Escrow, error)
	List(ctx context.Context, f repositories.EscrowFilter) ([]models.Escrow, error)
	ListPendingInvites(ctx context.Context, email string) ([]models.Escrow, error)
	MarkInvited(ctx context.Context, id uuid.UUID, act models.Activity) (*models.Escrow, error)
	Accept(ctx context.Context, id, customerID uuid.UUID, act models.Activity) (*models.Escrow, error)
	MarkDeposited(ctx context.Context, id, customerID uuid.UUID, paymentRef *string, act models.Activity) (*models.Escrow, error)

	ListMilestones(ctx context.Context, escrowID uuid.UUID) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	SubmitMilestone(ctx context.Context, id, actor uuid.UUID, evidence string, evidenceURL *string, act models.Activity) (*models.Milestone, error)
	RejectMilestone(ctx context.Context, id uuid.UUID, reason string, act models.Activity) (*models.Milestone, error)
	ApproveMilestone(ctx context.Context, id, approver uuid.UUID,
		activities func(*models.Milestone, *models.Escrow) []models.Activity) (*models.Milestone, *models.Escrow, error)
}

type ActivityStore interface {
	ListByEscrow(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]models.Activity, error)
}

type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Asset, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Asset, error)
	SetTokenized(ctx context.Context, id uuid.UUID, chainID, txHash string, block int64) error
	SetVerification(ctx context.Context, id uuid.UUID, status, verificationStatus string, data map[string]any) error
	MarkError(ctx context.Context, id uuid.UUID, msg string) error
}

type VerificationLogStore interface {
	Create(ctx context.Context, l *models.VerificationLog) error
	ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.VerificationLog, error)
}

type LoanStore interface {
	Create(ctx context.Context, l *models.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	List(ctx context.Context, f repositories.LoanFilter) ([]models.Loan, error)
	Review(ctx context.Context, id, reviewer uuid.UUID, to string, notes, conditions *string) (*models.Loan, error)
	Fund(ctx context.Context, id, lender uuid.UUID) (*models.Loan, error)
	SetChainTx(ctx context.Context, id uuid.UUID, txHash string) error
	ListHistory(ctx context.Context, loanID uuid.UUID) ([]models.LoanStatusChange, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastActive(ctx context.Context, id uuid.UUID) error
}

// Dispatcher runs background jobs; implemented by jobs.Queue.
type Dispatcher interface {
	Dispatch(job jobs.Job) error
}
