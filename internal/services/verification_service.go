package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/models"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/sme-lending/backend/internal/rbac"
	"go.uber.org/zap"
)

type VerificationService struct {
	assets   AssetStore
	logs     VerificationLogStore
	verifier *oracle.Verifier
	ledger   oracle.Ledger
	log      *zap.Logger
}

// NewVerificationService accepts a nil ledger; manual verification then
// reports the oracle as unavailable.
func NewVerificationService(assets AssetStore, logs VerificationLogStore, verifier *oracle.Verifier, ledger oracle.Ledger, log *zap.Logger) *VerificationService {
	return &VerificationService{assets: assets, logs: logs, verifier: verifier, ledger: ledger, log: log}
}

type VerificationResult struct {
	Asset models.Asset           `json:"asset"`
	Log   models.VerificationLog `json:"verification"`
}

// VerifyAsset re-runs verification on demand for the owner or an admin.
func (s *VerificationService) VerifyAsset(ctx context.Context, actor *auth.Principal, assetID uuid.UUID) (*VerificationResult, error) {
	if s.ledger == nil {
		return nil, apperr.Unavailable("verification oracle is not configured")
	}
	a, err := s.loadForOwner(ctx, actor, assetID)
	if err != nil {
		return nil, err
	}

	entry, err := s.run(ctx, a)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnexpected {
			return nil, err
		}
		return nil, apperr.Unexpected("verify asset", err)
	}

	updated, err := s.assets.GetByID(ctx, a.ID)
	if err != nil {
		return nil, fromStore("asset", "reload asset", err)
	}
	return &VerificationResult{Asset: *updated, Log: *entry}, nil
}

func (s *VerificationService) Logs(ctx context.Context, actor *auth.Principal, assetID uuid.UUID) ([]models.VerificationLog, error) {
	if _, err := s.loadForOwner(ctx, actor, assetID); err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, apperr.Storage("list verification logs", err)
	}
	return logs, nil
}

// run scores the asset, appends the log entry, stores the verdict on the
// asset and notifies the ledger. The notify step is best effort.
func (s *VerificationService) run(ctx context.Context, a *models.Asset) (*models.VerificationLog, error) {
	verdict, err := s.verifier.Verify(ctx, a)
	if err != nil {
		return nil, err
	}

	entry := &models.VerificationLog{
		AssetID:    a.ID,
		Method:     verdict.Method,
		Verdict:    verdict.Status,
		Confidence: verdict.Confidence,
		RiskLevel:  verdict.RiskLevel,
		Checks:     verdict.Checks,
	}
	if verdict.Error != "" {
		entry.ErrorMessage = strPtr(verdict.Error)
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, apperr.Storage("write verification log", err)
	}

	if err := s.assets.SetVerification(ctx, a.ID, verdict.Status, verdict.Status, verdict.Data()); err != nil {
		return nil, fromStore("asset", "store verification", err)
	}

	s.log.Info("asset verified",
		zap.String("asset_id", a.ID.String()),
		zap.String("verdict", verdict.Status),
		zap.Float64("confidence", verdict.Confidence),
	)

	if s.ledger != nil && a.IsTokenized() {
		if _, err := s.ledger.NotifyVerification(ctx, *a.BlockchainAssetID, verdict); err != nil {
			s.log.Warn("verification notify failed", zap.String("asset_id", a.ID.String()), zap.Error(err))
		}
	}
	return entry, nil
}

func (s *VerificationService) loadForOwner(ctx context.Context, actor *auth.Principal, assetID uuid.UUID) (*models.Asset, error) {
	a, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fromStore("asset", "get asset", err)
	}
	if a.UserID != actor.ID && !rbac.HasPermission(actor.Role, rbac.PermManageAnyAsset) {
		return nil, apperr.AccessDenied("asset belongs to another user")
	}
	return a, nil
}
