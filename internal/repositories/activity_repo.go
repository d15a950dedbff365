package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sme-lending/backend/internal/models"
)

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertActivity(ctx context.Context, q queryRower, a *models.Activity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return q.QueryRow(ctx, `
		INSERT INTO escrow_activities (id, escrow_id, milestone_id, user_id, action_type, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, a.ID, a.EscrowID, a.MilestoneID, a.UserID, a.ActionType, a.Description, meta).Scan(&a.CreatedAt)
}

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) ListByEscrow(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, escrow_id, milestone_id, user_id, action_type, description, metadata, created_at
		FROM escrow_activities WHERE escrow_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, escrowID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	acts := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.EscrowID, &a.MilestoneID, &a.UserID, &a.ActionType, &a.Description, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}
