package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/events"
	"github.com/sme-lending/backend/internal/jobs"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/repositories"
)

// memEscrows mirrors the guarded updates of repositories.EscrowRepo.
type memEscrows struct {
	mu         sync.Mutex
	escrows    map[uuid.UUID]*models.Escrow
	milestones map[uuid.UUID]*models.Milestone
	activities []models.Activity
	failCreate error
}

func newMemEscrows() *memEscrows {
	return &memEscrows{
		escrows:    map[uuid.UUID]*models.Escrow{},
		milestones: map[uuid.UUID]*models.Milestone{},
	}
}

func (m *memEscrows) appendActivity(a models.Activity) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.activities = append(m.activities, a)
}

func (m *memEscrows) CreateWithMilestones(_ context.Context, e *models.Escrow, ms []models.Milestone, act models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	cp := *e
	m.escrows[e.ID] = &cp
	for i := range ms {
		mc := ms[i]
		m.milestones[mc.ID] = &mc
	}
	m.appendActivity(act)
	return nil
}

func (m *memEscrows) GetByID(_ context.Context, id uuid.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEscrows) GetByToken(_ context.Context, token string) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escrows {
		if e.InviteToken == token {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memEscrows) List(_ context.Context, f repositories.EscrowFilter) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Escrow{}
	for _, e := range m.escrows {
		match := false
		switch f.As {
		case "sme":
			match = e.SMEID == f.UserID
		case "customer":
			match = e.IsCustomer(f.UserID)
		default:
			match = e.IsParty(f.UserID)
		}
		if match && (f.Status == nil || e.Status == *f.Status) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEscrows) ListPendingInvites(_ context.Context, email string) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Escrow{}
	for _, e := range m.escrows {
		if strings.EqualFold(e.CustomerEmail, email) && e.CustomerID == nil &&
			(e.Status == models.EscrowStatusDraft || e.Status == models.EscrowStatusInvited) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEscrows) escrowTransition(id uuid.UUID, act models.Activity, guard func(*models.Escrow) bool, apply func(*models.Escrow)) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok || !guard(e) {
		return nil, repositories.ErrConflict
	}
	apply(e)
	e.Version++
	e.UpdatedAt = time.Now()
	m.appendActivity(act)
	cp := *e
	return &cp, nil
}

func (m *memEscrows) MarkInvited(_ context.Context, id uuid.UUID, act models.Activity) (*models.Escrow, error) {
	return m.escrowTransition(id, act,
		func(e *models.Escrow) bool {
			return models.IsValidEscrowTransition(e.Status, models.EscrowStatusInvited)
		},
		func(e *models.Escrow) {
			now := time.Now()
			e.Status = models.EscrowStatusInvited
			e.InviteSentAt = &now
		})
}

func (m *memEscrows) Accept(_ context.Context, id, customerID uuid.UUID, act models.Activity) (*models.Escrow, error) {
	return m.escrowTransition(id, act,
		func(e *models.Escrow) bool {
			return e.CustomerID == nil && models.IsValidEscrowTransition(e.Status, models.EscrowStatusPendingDeposit)
		},
		func(e *models.Escrow) {
			now := time.Now()
			e.CustomerID = &customerID
			e.Status = models.EscrowStatusPendingDeposit
			e.InviteAcceptedAt = &now
		})
}

func (m *memEscrows) MarkDeposited(_ context.Context, id, customerID uuid.UUID, paymentRef *string, act models.Activity) (*models.Escrow, error) {
	return m.escrowTransition(id, act,
		func(e *models.Escrow) bool {
			return e.IsCustomer(customerID) && e.Status == models.EscrowStatusPendingDeposit
		},
		func(e *models.Escrow) {
			now := time.Now()
			e.Status = models.EscrowStatusActive
			e.DepositedAmount = e.TotalAmount
			e.DepositedAt = &now
			e.PaymentReference = paymentRef
		})
}

func (m *memEscrows) ListMilestones(_ context.Context, escrowID uuid.UUID) ([]models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Milestone{}
	for _, ms := range m.milestones {
		if ms.EscrowID == escrowID {
			out = append(out, *ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memEscrows) GetMilestone(_ context.Context, id uuid.UUID) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m *memEscrows) milestoneTransition(id uuid.UUID, to string, act models.Activity, apply func(*models.Milestone)) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || !models.IsValidMilestoneTransition(ms.Status, to) {
		return nil, repositories.ErrConflict
	}
	ms.Status = to
	apply(ms)
	m.appendActivity(act)
	cp := *ms
	return &cp, nil
}

func (m *memEscrows) SubmitMilestone(_ context.Context, id, actor uuid.UUID, evidence string, evidenceURL *string, act models.Activity) (*models.Milestone, error) {
	return m.milestoneTransition(id, models.MilestoneStatusSubmitted, act, func(ms *models.Milestone) {
		now := time.Now()
		ms.EvidenceDescription = &evidence
		ms.EvidenceURL = evidenceURL
		ms.SubmittedAt = &now
		ms.SubmittedBy = &actor
	})
}

func (m *memEscrows) RejectMilestone(_ context.Context, id uuid.UUID, reason string, act models.Activity) (*models.Milestone, error) {
	return m.milestoneTransition(id, models.MilestoneStatusRejected, act, func(ms *models.Milestone) {
		ms.RejectionReason = &reason
	})
}

func (m *memEscrows) ApproveMilestone(_ context.Context, id, approver uuid.UUID,
	activities func(*models.Milestone, *models.Escrow) []models.Activity,
) (*models.Milestone, *models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || !models.IsValidMilestoneTransition(ms.Status, models.MilestoneStatusApproved) {
		return nil, nil, repositories.ErrConflict
	}
	e := m.escrows[ms.EscrowID]
	released := e.ReleasedAmount.Add(ms.Amount)
	if e.Status != models.EscrowStatusActive || released.GreaterThan(e.DepositedAmount) {
		return nil, nil, repositories.ErrConflict
	}

	now := time.Now()
	ms.Status = models.MilestoneStatusApproved
	ms.ApprovedAt, ms.ApprovedBy, ms.ReleasedAt = &now, &approver, &now
	e.ReleasedAmount = released
	if released.GreaterThanOrEqual(e.TotalAmount) {
		e.Status = models.EscrowStatusCompleted
	}
	e.Version++

	mc, ec := *ms, *e
	for _, a := range activities(&mc, &ec) {
		m.appendActivity(a)
	}
	return &mc, &ec, nil
}

func (m *memEscrows) ListByEscrow(_ context.Context, escrowID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Activity{}
	for i := len(m.activities) - 1; i >= 0; i-- {
		if m.activities[i].EscrowID == escrowID {
			out = append(out, m.activities[i])
		}
	}
	if offset >= len(out) {
		return []models.Activity{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEscrows) activityTypes(escrowID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.activities {
		if a.EscrowID == escrowID {
			out = append(out, a.ActionType)
		}
	}
	return out
}

func (m *memEscrows) count() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.escrows), len(m.milestones)
}

type memAssets struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*models.Asset
}

func newMemAssets() *memAssets {
	return &memAssets{assets: map[uuid.UUID]*models.Asset{}}
}

func (m *memAssets) Create(_ context.Context, a *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.assets[a.ID] = &cp
	return nil
}

func (m *memAssets) GetByID(_ context.Context, id uuid.UUID) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssets) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Asset{}
	for _, a := range m.assets {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAssets) ListStalePending(_ context.Context, olderThan time.Duration, _ int) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	out := []models.Asset{}
	for _, a := range m.assets {
		if a.Status == models.AssetStatusPending && a.BlockchainAssetID == nil && a.CreatedAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAssets) SetTokenized(_ context.Context, id uuid.UUID, chainID, txHash string, block int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.BlockchainAssetID != nil {
		return repositories.ErrConflict
	}
	a.BlockchainAssetID, a.TransactionHash, a.BlockNumber = &chainID, &txHash, &block
	return nil
}

func (m *memAssets) SetVerification(_ context.Context, id uuid.UUID, status, verificationStatus string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return repositories.ErrNotFound
	}
	now := time.Now()
	a.Status = status
	a.VerificationStatus = &verificationStatus
	a.VerificationData = data
	a.VerifiedAt = &now
	return nil
}

func (m *memAssets) MarkError(_ context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if a.Status != models.AssetStatusPending {
		return nil
	}
	a.Status = models.AssetStatusError
	a.ErrorMessage = &msg
	return nil
}

func (m *memAssets) age(id uuid.UUID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[id].CreatedAt = m.assets[id].CreatedAt.Add(-d)
}

type memVerificationLogs struct {
	mu   sync.Mutex
	logs []models.VerificationLog
}

func (m *memVerificationLogs) Create(_ context.Context, l *models.VerificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memVerificationLogs) ListByAsset(_ context.Context, assetID uuid.UUID) ([]models.VerificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.VerificationLog{}
	for _, l := range m.logs {
		if l.AssetID == assetID {
			out = append(out, l)
		}
	}
	return out, nil
}

type memLoans struct {
	mu      sync.Mutex
	loans   map[uuid.UUID]*models.Loan
	history []models.LoanStatusChange
}

func newMemLoans() *memLoans {
	return &memLoans{loans: map[uuid.UUID]*models.Loan{}}
}

func (m *memLoans) Create(_ context.Context, l *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	cp := *l
	m.loans[l.ID] = &cp
	m.history = append(m.history, models.LoanStatusChange{ID: uuid.New(), LoanID: l.ID, ToStatus: l.Status, ActorID: l.SMEID})
	return nil
}

func (m *memLoans) GetByID(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLoans) List(_ context.Context, f repositories.LoanFilter) ([]models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Loan{}
	for _, l := range m.loans {
		if f.SMEID != nil && l.SMEID != *f.SMEID {
			continue
		}
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (m *memLoans) transition(id, actor uuid.UUID, to string, note *string, apply func(*models.Loan)) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if !models.IsValidLoanTransition(l.Status, to) {
		return nil, repositories.ErrConflict
	}
	from := l.Status
	l.Status = to
	apply(l)
	m.history = append(m.history, models.LoanStatusChange{ID: uuid.New(), LoanID: id, FromStatus: &from, ToStatus: to, ActorID: actor, Note: note})
	cp := *l
	return &cp, nil
}

func (m *memLoans) Review(_ context.Context, id, reviewer uuid.UUID, to string, notes, conditions *string) (*models.Loan, error) {
	return m.transition(id, reviewer, to, notes, func(l *models.Loan) {
		now := time.Now()
		if to == models.LoanStatusApproved {
			l.LenderID = &reviewer
		}
		l.LenderNotes, l.ApprovalConditions = notes, conditions
		l.ReviewedAt, l.ReviewedBy = &now, &reviewer
	})
}

func (m *memLoans) Fund(_ context.Context, id, lender uuid.UUID) (*models.Loan, error) {
	return m.transition(id, lender, models.LoanStatusFunded, nil, func(l *models.Loan) {
		now := time.Now()
		l.LenderID = &lender
		l.FundedAt = &now
	})
}

func (m *memLoans) SetChainTx(_ context.Context, id uuid.UUID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loans[id]; ok {
		l.ChainTxHash = &txHash
	}
	return nil
}

func (m *memLoans) ListHistory(_ context.Context, loanID uuid.UUID) ([]models.LoanStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.LoanStatusChange{}
	for _, h := range m.history {
		if h.LoanID == loanID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uuid.UUID]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.LastActiveAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memUsers) UpdateLastActive(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastActiveAt = time.Now()
	}
	return nil
}

// syncDispatcher runs each job inline with a fixed number of attempts so
// tests can observe the outcome without waiting on a pool.
type syncDispatcher struct {
	mu       sync.Mutex
	attempts int
	names    []string
}

func (d *syncDispatcher) Dispatch(job jobs.Job) error {
	d.mu.Lock()
	d.names = append(d.names, job.Name)
	d.mu.Unlock()

	attempts := d.attempts
	if attempts <= 0 {
		attempts = 1
	}
	ctx := context.Background()
	var err error
	for i := 0; i < attempts; i++ {
		if err = job.Run(ctx); err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			break
		}
	}
	if job.OnFailure != nil {
		job.OnFailure(ctx, err)
	}
	return nil
}

func (d *syncDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
