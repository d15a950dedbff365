package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sme-lending/backend/internal/models"
)

const assetColumns = `id, user_id, type, value, description, asset_name, status,
	blockchain_asset_id, transaction_hash, block_number,
	verification_status, verification_data, verified_at, error_message, created_at, updated_at`

type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func scanAsset(row pgx.Row) (*models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Value, &a.Description, &a.AssetName, &a.Status,
		&a.BlockchainAssetID, &a.TransactionHash, &a.BlockNumber,
		&a.VerificationStatus, &a.VerificationData, &a.VerifiedAt, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssetRepo) Create(ctx context.Context, a *models.Asset) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO assets (user_id, type, value, description, asset_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, a.UserID, a.Type, a.Value, a.Description, a.AssetName, a.Status).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	return a, mapErr(err)
}

func (r *AssetRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Asset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return r.query(ctx, `
		SELECT `+assetColumns+` FROM assets WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

// ListStalePending returns assets still waiting for tokenization after olderThan.
func (r *AssetRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Asset, error) {
	return r.query(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE status = $1 AND blockchain_asset_id IS NULL AND created_at < $2
		ORDER BY created_at LIMIT $3
	`, models.AssetStatusPending, time.Now().Add(-olderThan), limit)
}

func (r *AssetRepo) query(ctx context.Context, query string, args ...any) ([]models.Asset, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []models.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// SetTokenized records chain identifiers once; a second call is a conflict.
func (r *AssetRepo) SetTokenized(ctx context.Context, id uuid.UUID, chainID, txHash string, block int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assets SET blockchain_asset_id = $2, transaction_hash = $3, block_number = $4,
		       error_message = NULL, updated_at = now()
		WHERE id = $1 AND blockchain_asset_id IS NULL
	`, id, chainID, txHash, block)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *AssetRepo) SetVerification(ctx context.Context, id uuid.UUID, status, verificationStatus string, data map[string]any) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assets SET status = $2, verification_status = $3, verification_data = $4,
		       verified_at = now(), error_message = NULL, updated_at = now()
		WHERE id = $1
	`, id, status, verificationStatus, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AssetRepo) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE assets SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.AssetStatusError, msg, models.AssetStatusPending)
	return err
}
