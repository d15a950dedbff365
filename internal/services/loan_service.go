package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/events"
	"github.com/sme-lending/backend/internal/jobs"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/sme-lending/backend/internal/rbac"
	"github.com/sme-lending/backend/internal/repositories"
	"go.uber.org/zap"
)

const (
	JobRecordLoan = "record_loan"
	JobFundLoan   = "fund_loan"
)

type LoanService struct {
	loans      LoanStore
	assets     AssetStore
	ledger     oracle.Ledger
	dispatcher Dispatcher
	publisher  events.Publisher
	log        *zap.Logger
	now        func() time.Time
}

func NewLoanService(
	loans LoanStore,
	assets AssetStore,
	ledger oracle.Ledger,
	dispatcher Dispatcher,
	publisher events.Publisher,
	log *zap.Logger,
) *LoanService {
	return &LoanService{
		loans:      loans,
		assets:     assets,
		ledger:     ledger,
		dispatcher: dispatcher,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

type RequestLoanInput struct {
	AssetID         uuid.UUID
	AmountRequested decimal.Decimal
	InterestRate    decimal.Decimal
	TermMonths      int
	Purpose         *string
}

type ReviewLoanInput struct {
	Notes      *string
	Conditions *string
}

func (s *LoanService) Request(ctx context.Context, actor *auth.Principal, in RequestLoanInput) (*models.Loan, error) {
	if !in.AmountRequested.IsPositive() {
		return nil, apperr.Validation("amount_requested must be positive")
	}
	if in.TermMonths <= 0 {
		return nil, apperr.Validation("term_months must be positive")
	}
	if in.InterestRate.IsNegative() {
		return nil, apperr.Validation("interest_rate must not be negative")
	}

	a, err := s.assets.GetByID(ctx, in.AssetID)
	if err != nil {
		return nil, fromStore("asset", "get asset", err)
	}
	if a.UserID != actor.ID {
		return nil, apperr.AccessDenied("asset belongs to another user")
	}

	l := &models.Loan{
		SMEID:           actor.ID,
		AssetID:         a.ID,
		AmountRequested: in.AmountRequested,
		InterestRate:    in.InterestRate,
		TermMonths:      in.TermMonths,
		Purpose:         trimmed(in.Purpose),
		Status:          models.LoanStatusRequested,
		DueDate:         models.DueDateFor(s.now(), in.TermMonths),
	}
	if err := s.loans.Create(ctx, l); err != nil {
		return nil, apperr.Storage("create loan", err)
	}

	s.log.Info("loan requested",
		zap.String("loan_id", l.ID.String()),
		zap.String("sme_id", actor.ID.String()),
		zap.String("amount", l.AmountRequested.String()),
	)
	s.publish(ctx, l)

	s.dispatchChain(JobRecordLoan, l.ID, func(ctx context.Context) (*oracle.Receipt, error) {
		return s.ledger.RecordLoan(ctx, oracle.LoanRecord{
			LoanID:     l.ID,
			AssetID:    l.AssetID,
			BorrowerID: l.SMEID,
			Amount:     l.AmountRequested,
			TermMonths: l.TermMonths,
		})
	})
	return l, nil
}

func (s *LoanService) Get(ctx context.Context, actor *auth.Principal, id uuid.UUID) (*models.Loan, error) {
	l, err := s.loans.GetByID(ctx, id)
	if err != nil {
		return nil, fromStore("loan", "get loan", err)
	}
	if !canView(actor, l) {
		return nil, apperr.NotFound("loan")
	}
	return l, nil
}

// List shows borrowers their own loans; lenders and admins see the whole book.
func (s *LoanService) List(ctx context.Context, actor *auth.Principal, status *string, limit, offset int) ([]models.Loan, error) {
	f := repositories.LoanFilter{Status: status, Limit: limit, Offset: offset}
	if !rbac.HasPermission(actor.Role, rbac.PermViewAllLoans) {
		f.SMEID = &actor.ID
	}
	loans, err := s.loans.List(ctx, f)
	if err != nil {
		return nil, apperr.Storage("list loans", err)
	}
	return loans, nil
}

func (s *LoanService) History(ctx context.Context, actor *auth.Principal, id uuid.UUID) ([]models.LoanStatusChange, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	h, err := s.loans.ListHistory(ctx, id)
	if err != nil {
		return nil, apperr.Storage("list loan history", err)
	}
	return h, nil
}

func (s *LoanService) Approve(ctx context.Context, actor *auth.Principal, id uuid.UUID, in ReviewLoanInput) (*models.Loan, error) {
	return s.review(ctx, actor, id, models.LoanStatusApproved, in)
}

func (s *LoanService) Reject(ctx context.Context, actor *auth.Principal, id uuid.UUID, in ReviewLoanInput) (*models.Loan, error) {
	return s.review(ctx, actor, id, models.LoanStatusRejected, in)
}

func (s *LoanService) review(ctx context.Context, actor *auth.Principal, id uuid.UUID, to string, in ReviewLoanInput) (*models.Loan, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermReviewLoan) {
		return nil, apperr.AccessDenied("only lenders can review loans")
	}

	l, err := s.loans.Review(ctx, id, actor.ID, to, trimmed(in.Notes), trimmed(in.Conditions))
	if err != nil {
		return nil, s.transitionErr(ctx, id, to, err)
	}

	s.log.Info("loan reviewed",
		zap.String("loan_id", id.String()),
		zap.String("status", to),
		zap.String("reviewer", actor.ID.String()),
	)
	s.publish(ctx, l)
	return l, nil
}

// Fund records the caller as lender. Borrowers cannot fund their own loans.
func (s *LoanService) Fund(ctx context.Context, actor *auth.Principal, id uuid.UUID) (*models.Loan, error) {
	current, err := s.loans.GetByID(ctx, id)
	if err != nil {
		return nil, fromStore("loan", "get loan", err)
	}
	if current.SMEID == actor.ID {
		return nil, apperr.AccessDenied("borrower cannot fund own loan")
	}
	if !models.IsValidLoanTransition(current.Status, models.LoanStatusFunded) {
		return nil, apperr.InvalidState("loan cannot be funded", current.Status)
	}

	l, err := s.loans.Fund(ctx, id, actor.ID)
	if err != nil {
		return nil, s.transitionErr(ctx, id, models.LoanStatusFunded, err)
	}

	s.log.Info("loan funded",
		zap.String("loan_id", id.String()),
		zap.String("lender_id", actor.ID.String()),
	)
	s.publish(ctx, l)

	s.dispatchChain(JobFundLoan, l.ID, func(ctx context.Context) (*oracle.Receipt, error) {
		return s.ledger.FundLoan(ctx, oracle.LoanFunding{
			LoanID:   l.ID,
			LenderID: actor.ID,
			Amount:   l.AmountRequested,
		})
	})
	return l, nil
}

// dispatchChain runs a loan side effect on the ledger in the background.
// Failures are logged only; the loan row keeps its status.
func (s *LoanService) dispatchChain(name string, loanID uuid.UUID, call func(context.Context) (*oracle.Receipt, error)) {
	if s.ledger == nil {
		return
	}
	err := s.dispatcher.Dispatch(jobs.Job{
		Name:     name,
		EntityID: loanID.String(),
		Run: func(ctx context.Context) error {
			rcpt, err := call(ctx)
			if err != nil {
				if oracle.IsPermanent(err) {
					return jobs.Permanent(err)
				}
				return err
			}
			return s.loans.SetChainTx(ctx, loanID, rcpt.TxHash)
		},
		OnFailure: func(ctx context.Context, err error) {
			s.log.Warn("loan chain side effect failed",
				zap.String("job", name),
				zap.String("loan_id", loanID.String()),
				zap.Error(err),
			)
		},
	})
	if err != nil {
		s.log.Warn("loan job dispatch failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *LoanService) transitionErr(ctx context.Context, id uuid.UUID, to string, err error) error {
	if !errors.Is(err, repositories.ErrConflict) {
		return fromStore("loan", "update loan", err)
	}
	current, gerr := s.loans.GetByID(ctx, id)
	if gerr != nil {
		return fromStore("loan", "get loan", gerr)
	}
	return apperr.InvalidState("loan cannot move to "+to, current.Status)
}

func (s *LoanService) publish(ctx context.Context, l *models.Loan) {
	recipients := []uuid.UUID{l.SMEID}
	if l.LenderID != nil {
		recipients = append(recipients, *l.LenderID)
	}
	_ = s.publisher.Publish(ctx, events.ChannelLoan, events.Event{
		Type:       events.EventLoanStatusChanged,
		Recipients: recipients,
		Payload: map[string]any{
			"loan_id": l.ID.String(),
			"status":  l.Status,
		},
	})
}

func canView(actor *auth.Principal, l *models.Loan) bool {
	if l.SMEID == actor.ID || rbac.HasPermission(actor.Role, rbac.PermViewAllLoans) {
		return true
	}
	return l.LenderID != nil && *l.LenderID == actor.ID
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
