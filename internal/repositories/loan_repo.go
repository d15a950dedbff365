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

const loanColumns = `id, sme_id, asset_id, lender_id, amount_requested, interest_rate, term_months, purpose,
	status, due_date, lender_notes, approval_conditions, reviewed_at, reviewed_by, funded_at, chain_tx_hash,
	created_at, updated_at`

type LoanRepo struct {
	pool *pgxpool.Pool
}

func NewLoanRepo(pool *pgxpool.Pool) *LoanRepo {
	return &LoanRepo{pool: pool}
}

func scanLoan(row pgx.Row) (*models.Loan, error) {
	var l models.Loan
	err := row.Scan(&l.ID, &l.SMEID, &l.AssetID, &l.LenderID, &l.AmountRequested, &l.InterestRate, &l.TermMonths, &l.Purpose,
		&l.Status, &l.DueDate, &l.LenderNotes, &l.ApprovalConditions, &l.ReviewedAt, &l.ReviewedBy, &l.FundedAt, &l.ChainTxHash,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts the loan and its first history entry.
func (r *LoanRepo) Create(ctx context.Context, l *models.Loan) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO loans (sme_id, asset_id, amount_requested, interest_rate, term_months, purpose, status, due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`, l.SMEID, l.AssetID, l.AmountRequested, l.InterestRate, l.TermMonths, l.Purpose, l.Status, l.DueDate,
		).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return mapErr(err)
		}
		return insertHistory(ctx, tx, l.ID, nil, l.Status, l.SMEID, nil)
	})
}

func (r *LoanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	l, err := scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	return l, mapErr(err)
}

type LoanFilter struct {
	SMEID    *uuid.UUID
	LenderID *uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}

func (r *LoanRepo) List(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	args := []any{}
	where := []string{}

	if f.SMEID != nil {
		args = append(args, *f.SMEID)
		where = append(where, fmt.Sprintf("sme_id = $%d", len(args)))
	}
	if f.LenderID != nil {
		args = append(args, *f.LenderID)
		where = append(where, fmt.Sprintf("lender_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// Review moves a requested loan to approved or rejected.
func (r *LoanRepo) Review(ctx context.Context, id, reviewer uuid.UUID, to string, notes, conditions *string) (*models.Loan, error) {
	var lenderID *uuid.UUID
	if to == models.LoanStatusApproved {
		lenderID = &reviewer
	}
	return r.transition(ctx, id, reviewer, to, notes, `
		UPDATE loans SET status = $2, lender_id = COALESCE($3, lender_id), lender_notes = $4,
		       approval_conditions = $5, reviewed_at = now(), reviewed_by = $6, updated_at = now()
		WHERE id = $1 AND status = ANY($7)
		RETURNING `+loanColumns,
		id, to, lenderID, notes, conditions, reviewer, models.LoanSourcesFor(to))
}

func (r *LoanRepo) Fund(ctx context.Context, id, lender uuid.UUID) (*models.Loan, error) {
	return r.transition(ctx, id, lender, models.LoanStatusFunded, nil, `
		UPDATE loans SET status = $2, lender_id = $3, funded_at = now(), updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+loanColumns,
		id, models.LoanStatusFunded, lender, models.LoanSourcesFor(models.LoanStatusFunded))
}

func (r *LoanRepo) transition(ctx context.Context, id, actor uuid.UUID, to string, note *string, query string, args ...any) (*models.Loan, error) {
	var out *models.Loan
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var from string
		err := tx.QueryRow(ctx, `SELECT status FROM loans WHERE id = $1 FOR UPDATE`, id).Scan(&from)
		if err != nil {
			return mapErr(err)
		}

		l, err := scanLoan(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return conflictOnNoRows(err)
		}
		if err := insertHistory(ctx, tx, id, &from, to, actor, note); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

func (r *LoanRepo) SetChainTx(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE loans SET chain_tx_hash = $2, updated_at = now() WHERE id = $1`, id, txHash)
	return err
}

func (r *LoanRepo) ListHistory(ctx context.Context, loanID uuid.UUID) ([]models.LoanStatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, from_status, to_status, actor_id, note, created_at
		FROM loan_status_history WHERE loan_id = $1 ORDER BY created_at
	`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []models.LoanStatusChange{}
	for rows.Next() {
		var c models.LoanStatusChange
		if err := rows.Scan(&c.ID, &c.LoanID, &c.FromStatus, &c.ToStatus, &c.ActorID, &c.Note, &c.CreatedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, from *string, to string, actor uuid.UUID, note *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO loan_status_history (loan_id, from_status, to_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5)
	`, loanID, from, to, actor, note)
	return err
}
