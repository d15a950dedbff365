package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sme-lending/backend/internal/db"
	"github.com/sme-lending/backend/internal/models"
)

const escrowColumns = `id, sme_id, customer_id, customer_email, project_name, project_description,
	total_amount, deposited_amount, released_amount, status, invite_token,
	invite_sent_at, invite_accepted_at, deposit_due_date, deposited_at, payment_reference,
	version, created_at, updated_at`

const milestoneColumns = `id, escrow_id, title, description, amount, percentage, order_index, status,
	evidence_description, evidence_url, submitted_at, submitted_by,
	approved_at, approved_by, released_at, rejection_reason, created_at, updated_at`

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.SMEID, &e.CustomerID, &e.CustomerEmail, &e.ProjectName, &e.ProjectDescription,
		&e.TotalAmount, &e.DepositedAmount, &e.ReleasedAmount, &e.Status, &e.InviteToken,
		&e.InviteSentAt, &e.InviteAcceptedAt, &e.DepositDueDate, &e.DepositedAt, &e.PaymentReference,
		&e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.ID, &m.EscrowID, &m.Title, &m.Description, &m.Amount, &m.Percentage, &m.OrderIndex, &m.Status,
		&m.EvidenceDescription, &m.EvidenceURL, &m.SubmittedAt, &m.SubmittedBy,
		&m.ApprovedAt, &m.ApprovedBy, &m.ReleasedAt, &m.RejectionReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateWithMilestones inserts the escrow, its milestones and the creation
// activity in one transaction.
func (r *EscrowRepo) CreateWithMilestones(ctx context.Context, e *models.Escrow, ms []models.Milestone, act models.Activity) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO escrows (id, sme_id, customer_email, project_name, project_description,
			                     total_amount, status, invite_token, deposit_due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING deposited_amount, released_amount, version, created_at, updated_at
		`, e.ID, e.SMEID, e.CustomerEmail, e.ProjectName, e.ProjectDescription,
			e.TotalAmount, e.Status, e.InviteToken, e.DepositDueDate,
		).Scan(&e.DepositedAmount, &e.ReleasedAmount, &e.Version, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return mapErr(err)
		}

		for i := range ms {
			m := &ms[i]
			err := tx.QueryRow(ctx, `
				INSERT INTO escrow_milestones (id, escrow_id, title, description, amount, percentage, order_index, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING created_at, updated_at
			`, m.ID, m.EscrowID, m.Title, m.Description, m.Amount, m.Percentage, m.OrderIndex, m.Status,
			).Scan(&m.CreatedAt, &m.UpdatedAt)
			if err != nil {
				return mapErr(err)
			}
		}

		return insertActivity(ctx, tx, &act)
	})
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
	return e, mapErr(err)
}

func (r *EscrowRepo) GetByToken(ctx context.Context, token string) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE invite_token = $1`, token))
	return e, mapErr(err)
}

type EscrowFilter struct {
	UserID uuid.UUID
	As     string // "sme", "customer" or empty for either side
	Status *string
	Limit  int
	Offset int
}

func (r *EscrowRepo) List(ctx context.Context, f EscrowFilter) ([]models.Escrow, error) {
	args := []any{f.UserID}
	where := []string{}

	switch f.As {
	case "sme":
		where = append(where, "sme_id = $1")
	case "customer":
		where = append(where, "customer_id = $1")
	default:
		where = append(where, "(sme_id = $1 OR customer_id = $1)")
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryEscrows(ctx, query, args...)
}

func (r *EscrowRepo) ListPendingInvites(ctx context.Context, email string) ([]models.Escrow, error) {
	return r.queryEscrows(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE lower(customer_email) = lower($1) AND customer_id IS NULL AND status = ANY($2)
		ORDER BY created_at DESC
	`, email, []string{models.EscrowStatusDraft, models.EscrowStatusInvited})
}

func (r *EscrowRepo) queryEscrows(ctx context.Context, query string, args ...any) ([]models.Escrow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	escrows := []models.Escrow{}
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

func (r *EscrowRepo) MarkInvited(ctx context.Context, id uuid.UUID, act models.Activity) (*models.Escrow, error) {
	return r.transition(ctx, &act, `
		UPDATE escrows SET status = $2, invite_sent_at = now(), version = version + 1, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+escrowColumns,
		id, models.EscrowStatusInvited, models.EscrowSourcesFor(models.EscrowStatusInvited))
}

// Accept binds the customer once. The customer_id IS NULL guard makes a
// second acceptance a conflict even when two requests race.
func (r *EscrowRepo) Accept(ctx context.Context, id, customerID uuid.UUID, act models.Activity) (*models.Escrow, error) {
	return r.transition(ctx, &act, `
		UPDATE escrows SET customer_id = $2, status = $3, invite_accepted_at = now(),
		       version = version + 1, updated_at = now()
		WHERE id = $1 AND customer_id IS NULL AND status = ANY($4)
		RETURNING `+escrowColumns,
		id, customerID, models.EscrowStatusPendingDeposit, models.EscrowSourcesFor(models.EscrowStatusPendingDeposit))
}

func (r *EscrowRepo) MarkDeposited(ctx context.Context, id, customerID uuid.UUID, paymentRef *string, act models.Activity) (*models.Escrow, error) {
	return r.transition(ctx, &act, `
		UPDATE escrows SET status = $3, deposited_amount = total_amount, deposited_at = now(),
		       payment_reference = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND customer_id = $2 AND status = $5
		RETURNING `+escrowColumns,
		id, customerID, models.EscrowStatusActive, paymentRef, models.EscrowStatusPendingDeposit)
}

func (r *EscrowRepo) transition(ctx context.Context, act *models.Activity, query string, args ...any) (*models.Escrow, error) {
	var out *models.Escrow
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := scanEscrow(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return conflictOnNoRows(err)
		}
		if err := insertActivity(ctx, tx, act); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// ---- Milestones ----

func (r *EscrowRepo) ListMilestones(ctx context.Context, escrowID uuid.UUID) ([]models.Milestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+milestoneColumns+` FROM escrow_milestones WHERE escrow_id = $1 ORDER BY order_index
	`, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ms := []models.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		ms = append(ms, *m)
	}
	return ms, rows.Err()
}

func (r *EscrowRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	m, err := scanMilestone(r.pool.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM escrow_milestones WHERE id = $1`, id))
	return m, mapErr(err)
}

func (r *EscrowRepo) SubmitMilestone(ctx context.Context, id, actor uuid.UUID, evidence string, evidenceURL *string, act models.Activity) (*models.Milestone, error) {
	return r.milestoneTransition(ctx, &act, `
		UPDATE escrow_milestones
		SET status = $2, evidence_description = $3, evidence_url = $4,
		    submitted_at = now(), submitted_by = $5, updated_at = now()
		WHERE id = $1 AND status = ANY($6)
		RETURNING `+milestoneColumns,
		id, models.MilestoneStatusSubmitted, evidence, evidenceURL, actor,
		models.MilestoneSourcesFor(models.MilestoneStatusSubmitted))
}

func (r *EscrowRepo) RejectMilestone(ctx context.Context, id uuid.UUID, reason string, act models.Activity) (*models.Milestone, error) {
	return r.milestoneTransition(ctx, &act, `
		UPDATE escrow_milestones SET status = $2, rejection_reason = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+milestoneColumns,
		id, models.MilestoneStatusRejected, reason, models.MilestoneSourcesFor(models.MilestoneStatusRejected))
}

func (r *EscrowRepo) milestoneTransition(ctx context.Context, act *models.Activity, query string, args ...any) (*models.Milestone, error) {
	var out *models.Milestone
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		m, err := scanMilestone(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return conflictOnNoRows(err)
		}
		if err := insertActivity(ctx, tx, act); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

// ApproveMilestone approves a submitted milestone and releases its amount in
// one transaction. The escrow update only matches while the escrow is active
// and the new released total stays within the deposit, so concurrent
// approvals can never double count. activities is called with the updated
// rows and its entries are appended in the same transaction.
func (r *EscrowRepo) ApproveMilestone(ctx context.Context, id, approver uuid.UUID,
	activities func(*models.Milestone, *models.Escrow) []models.Activity,
) (*models.Milestone, *models.Escrow, error) {
	var (
		m *models.Milestone
		e *models.Escrow
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		m, err = scanMilestone(tx.QueryRow(ctx, `
			UPDATE escrow_milestones
			SET status = $2, approved_at = now(), approved_by = $3, released_at = now(), updated_at = now()
			WHERE id = $1 AND status = ANY($4)
			RETURNING `+milestoneColumns,
			id, models.MilestoneStatusApproved, approver, models.MilestoneSourcesFor(models.MilestoneStatusApproved)))
		if err != nil {
			return conflictOnNoRows(err)
		}

		e, err = scanEscrow(tx.QueryRow(ctx, `
			UPDATE escrows
			SET released_amount = released_amount + $2,
			    status = CASE WHEN released_amount + $2 >= total_amount THEN $3 ELSE status END,
			    version = version + 1, updated_at = now()
			WHERE id = $1 AND status = $4 AND released_amount + $2 <= deposited_amount
			RETURNING `+escrowColumns,
			m.EscrowID, m.Amount, models.EscrowStatusCompleted, models.EscrowStatusActive))
		if err != nil {
			return conflictOnNoRows(err)
		}

		for _, a := range activities(m, e) {
			if err := insertActivity(ctx, tx, &a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m, e, nil
}
