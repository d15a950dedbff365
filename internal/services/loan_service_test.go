package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loanFixture struct {
	loans  *memLoans
	assets *memAssets
	disp   *syncDispatcher
	pub    *recordingPublisher
	svc    *LoanService
	sme    *auth.Principal
	lender *auth.Principal
	asset  *models.Asset
}

func newLoanFixture(t *testing.T, ledger oracle.Ledger) *loanFixture {
	t.Helper()
	f := &loanFixture{
		loans:  newMemLoans(),
		assets: newMemAssets(),
		disp:   &syncDispatcher{attempts: 1},
		pub:    &recordingPublisher{},
		sme:    &auth.Principal{ID: uuid.New(), Email: "owner@sme.test", Role: "sme"},
		lender: &auth.Principal{ID: uuid.New(), Email: "desk@lender.test", Role: "lender"},
	}
	f.svc = NewLoanService(f.loans, f.assets, ledger, f.disp, f.pub, zap.NewNop())
	f.svc.now = func() time.Time { return time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC) }

	f.asset = &models.Asset{UserID: f.sme.ID, Type: models.AssetTypeInvoice, Value: decimal.NewFromInt(50000),
		Description: "Invoice 2024-0042", Status: models.AssetStatusVerified}
	require.NoError(t, f.assets.Create(context.Background(), f.asset))
	return f
}

func (f *loanFixture) request(t *testing.T) *models.Loan {
	t.Helper()
	l, err := f.svc.Request(context.Background(), f.sme, RequestLoanInput{
		AssetID:         f.asset.ID,
		AmountRequested: decimal.NewFromInt(20000),
		InterestRate:    decimal.RequireFromString("7.5"),
		TermMonths:      6,
	})
	require.NoError(t, err)
	return l
}

func TestRequestLoan(t *testing.T) {
	f := newLoanFixture(t, oracle.NewMockLedger(0, zap.NewNop()))
	l := f.request(t)

	assert.Equal(t, models.LoanStatusRequested, l.Status)
	assert.Equal(t, f.sme.ID, l.SMEID)
	assert.Nil(t, l.LenderID)
	assert.Equal(t, time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC), l.DueDate)
	assert.Equal(t, []string{JobRecordLoan}, f.disp.dispatched())

	stored, err := f.loans.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ChainTxHash)

	history, err := f.svc.History(context.Background(), f.sme, l.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LoanStatusRequested, history[0].ToStatus)
}

func TestRequestLoanValidation(t *testing.T) {
	f := newLoanFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.sme, RequestLoanInput{AssetID: f.asset.ID, AmountRequested: decimal.Zero, TermMonths: 6})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Request(ctx, f.sme, RequestLoanInput{AssetID: f.asset.ID, AmountRequested: decimal.NewFromInt(10), TermMonths: 0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Request(ctx, f.sme, RequestLoanInput{AssetID: uuid.New(), AmountRequested: decimal.NewFromInt(10), TermMonths: 3})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	other := &auth.Principal{ID: uuid.New(), Role: "sme"}
	_, err = f.svc.Request(ctx, other, RequestLoanInput{AssetID: f.asset.ID, AmountRequested: decimal.NewFromInt(10), TermMonths: 3})
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
}

func TestRequestLoanChainFailureIsNotSurfaced(t *testing.T) {
	f := newLoanFixture(t, &failingLedger{err: errors.New("oracle down")})
	l := f.request(t)

	stored, err := f.loans.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusRequested, stored.Status)
	assert.Nil(t, stored.ChainTxHash)
}

func TestApproveAndRejectLoan(t *testing.T) {
	f := newLoanFixture(t, nil)
	ctx := context.Background()
	notes := "  strong receivables  "

	l := f.request(t)
	_, err := f.svc.Approve(ctx, f.sme, l.ID, ReviewLoanInput{})
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))

	approved, err := f.svc.Approve(ctx, f.lender, l.ID, ReviewLoanInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, approved.Status)
	assert.Equal(t, "strong receivables", *approved.LenderNotes)
	assert.Equal(t, f.lender.ID, *approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)

	_, err = f.svc.Reject(ctx, f.lender, l.ID, ReviewLoanInput{})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindInvalidState, ae.Kind)
	assert.Equal(t, models.LoanStatusApproved, ae.CurrentStatus)

	second := f.request(t)
	admin := &auth.Principal{ID: uuid.New(), Role: "admin"}
	rejected, err := f.svc.Reject(ctx, admin, second.ID, ReviewLoanInput{})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusRejected, rejected.Status)
	assert.Nil(t, rejected.LenderID)

	history, err := f.svc.History(ctx, f.sme, second.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.LoanStatusRequested, *history[1].FromStatus)
	assert.Equal(t, models.LoanStatusRejected, history[1].ToStatus)

	_, err = f.svc.Approve(ctx, f.lender, uuid.New(), ReviewLoanInput{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestFundLoan(t *testing.T) {
	f := newLoanFixture(t, oracle.NewMockLedger(0, zap.NewNop()))
	ctx := context.Background()
	l := f.request(t)

	_, err := f.svc.Fund(ctx, f.sme, l.ID)
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))

	funded, err := f.svc.Fund(ctx, f.lender, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusFunded, funded.Status)
	assert.Equal(t, f.lender.ID, *funded.LenderID)
	assert.NotNil(t, funded.FundedAt)
	assert.Equal(t, []string{JobRecordLoan, JobFundLoan}, f.disp.dispatched())

	_, err = f.svc.Fund(ctx, f.lender, l.ID)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindInvalidState, ae.Kind)
	assert.Equal(t, models.LoanStatusFunded, ae.CurrentStatus)
}

func TestFundApprovedAndRejectedLoans(t *testing.T) {
	f := newLoanFixture(t, nil)
	ctx := context.Background()

	approved := f.request(t)
	_, err := f.svc.Approve(ctx, f.lender, approved.ID, ReviewLoanInput{})
	require.NoError(t, err)
	_, err = f.svc.Fund(ctx, f.lender, approved.ID)
	require.NoError(t, err)

	rejected := f.request(t)
	_, err = f.svc.Reject(ctx, f.lender, rejected.ID, ReviewLoanInput{})
	require.NoError(t, err)
	_, err = f.svc.Fund(ctx, f.lender, rejected.ID)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, models.LoanStatusRejected, ae.CurrentStatus)
}

func TestListAndGetLoans(t *testing.T) {
	f := newLoanFixture(t, nil)
	ctx := context.Background()
	l := f.request(t)

	mine, err := f.svc.List(ctx, f.sme, nil, 20, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	stranger := &auth.Principal{ID: uuid.New(), Role: "sme"}
	theirs, err := f.svc.List(ctx, stranger, nil, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.svc.Get(ctx, stranger, l.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	status := models.LoanStatusRequested
	book, err := f.svc.List(ctx, f.lender, &status, 20, 0)
	require.NoError(t, err)
	assert.Len(t, book, 1)

	got, err := f.svc.Get(ctx, f.lender, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
}

type failingLedger struct {
	oracle.Ledger
	err error
}

func (l *failingLedger) RecordLoan(context.Context, oracle.LoanRecord) (*oracle.Receipt, error) {
	return nil, l.err
}
