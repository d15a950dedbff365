package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sme-lending/backend/internal/models"
)

type VerificationRepo struct {
	pool *pgxpool.Pool
}

func NewVerificationRepo(pool *pgxpool.Pool) *VerificationRepo {
	return &VerificationRepo{pool: pool}
}

func (r *VerificationRepo) Create(ctx context.Context, l *models.VerificationLog) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO verification_logs (asset_id, method, verdict, confidence, risk_level, checks, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, l.AssetID, l.Method, l.Verdict, l.Confidence, l.RiskLevel, l.Checks, l.ErrorMessage).Scan(&l.ID, &l.CreatedAt)
}

func (r *VerificationRepo) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.VerificationLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, asset_id, method, verdict, confidence, risk_level, checks, error_message, created_at
		FROM verification_logs WHERE asset_id = $1 ORDER BY created_at DESC
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.VerificationLog{}
	for rows.Next() {
		var l models.VerificationLog
		if err := rows.Scan(&l.ID, &l.AssetID, &l.Method, &l.Verdict, &l.Confidence, &l.RiskLevel, &l.Checks, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
