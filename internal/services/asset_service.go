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
	"github.com/sme-lending/backend/internal/repositories"
	"go.uber.org/zap"
)

const JobTokenizeAsset = "tokenize_asset"

type AssetService struct {
	assets       AssetStore
	verification *VerificationService
	ledger       oracle.Ledger
	dispatcher   Dispatcher
	publisher    events.Publisher
	log          *zap.Logger
}

func NewAssetService(
	assets AssetStore,
	verification *VerificationService,
	ledger oracle.Ledger,
	dispatcher Dispatcher,
	publisher events.Publisher,
	log *zap.Logger,
) *AssetService {
	return &AssetService{
		assets:       assets,
		verification: verification,
		ledger:       ledger,
		dispatcher:   dispatcher,
		publisher:    publisher,
		log:          log,
	}
}

type CreateAssetInput struct {
	Type        string
	Value       decimal.Decimal
	Description string
	AssetName   *string
}

// Create stores the asset as pending and hands tokenization to the job
// queue. The response never waits on the oracle.
func (s *AssetService) Create(ctx context.Context, actor *auth.Principal, in CreateAssetInput) (*models.Asset, error) {
	if !models.IsValidAssetType(in.Type) {
		return nil, apperr.Validation("type must be one of %s", strings.Join(models.AllAssetTypes, ", "))
	}
	if !in.Value.IsPositive() {
		return nil, apperr.Validation("value must be positive")
	}
	desc := strings.TrimSpace(in.Description)
	if len([]rune(desc)) < models.MinAssetDescriptionLen {
		return nil, apperr.Validation("description must be at least %d characters", models.MinAssetDescriptionLen)
	}

	a := &models.Asset{
		UserID:      actor.ID,
		Type:        in.Type,
		Value:       in.Value,
		Description: desc,
		AssetName:   in.AssetName,
		Status:      models.AssetStatusPending,
	}
	if err := s.assets.Create(ctx, a); err != nil {
		return nil, apperr.Storage("create asset", err)
	}

	if s.ledger == nil {
		s.log.Warn("oracle disabled, asset left pending", zap.String("asset_id", a.ID.String()))
		return a, nil
	}
	if err := s.EnqueueTokenization(a.ID); err != nil {
		// the reconciler picks the asset up again
		s.log.Error("tokenization dispatch failed", zap.String("asset_id", a.ID.String()), zap.Error(err))
	}
	return a, nil
}

func (s *AssetService) Get(ctx context.Context, actor *auth.Principal, id uuid.UUID) (*models.Asset, error) {
	return s.verification.loadForOwner(ctx, actor, id)
}

func (s *AssetService) List(ctx context.Context, actor *auth.Principal, limit, offset int) ([]models.Asset, error) {
	assets, err := s.assets.ListByUser(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list assets", err)
	}
	return assets, nil
}

func (s *AssetService) EnqueueTokenization(assetID uuid.UUID) error {
	return s.dispatcher.Dispatch(jobs.Job{
		Name:     JobTokenizeAsset,
		EntityID: assetID.String(),
		Run: func(ctx context.Context) error {
			return s.tokenize(ctx, assetID)
		},
		OnFailure: func(ctx context.Context, err error) {
			s.markError(ctx, assetID, err)
		},
	})
}

// tokenize is safe to repeat: chain ids already recorded are kept and only
// verification runs again.
func (s *AssetService) tokenize(ctx context.Context, assetID uuid.UUID) error {
	if s.ledger == nil {
		return jobs.Permanent(oracle.ErrUnavailable)
	}

	a, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return jobs.Permanent(err)
		}
		return err
	}

	if !a.IsTokenized() {
		res, err := s.ledger.TokenizeAsset(ctx, oracle.TokenizeRequest{
			AssetID:     a.ID,
			OwnerID:     a.UserID,
			Type:        a.Type,
			Value:       a.Value,
			Description: a.Description,
		})
		if err != nil {
			if oracle.IsPermanent(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		err = s.assets.SetTokenized(ctx, a.ID, res.ChainAssetID, res.TxHash, res.BlockNumber)
		if err != nil && !errors.Is(err, repositories.ErrConflict) {
			return err
		}
		if err == nil {
			a.BlockchainAssetID = &res.ChainAssetID
			a.TransactionHash = &res.TxHash
			a.BlockNumber = &res.BlockNumber
		} else if a, err = s.assets.GetByID(ctx, assetID); err != nil {
			return err
		}
		s.log.Info("asset tokenized",
			zap.String("asset_id", a.ID.String()),
			zap.String("chain_asset_id", *a.BlockchainAssetID),
		)
	}

	if _, err := s.verification.run(ctx, a); err != nil {
		return err
	}
	s.publishAsset(ctx, a.ID)
	return nil
}

func (s *AssetService) markError(ctx context.Context, assetID uuid.UUID, cause error) {
	if err := s.assets.MarkError(ctx, assetID, cause.Error()); err != nil {
		s.log.Error("failed to mark asset error", zap.String("asset_id", assetID.String()), zap.Error(err))
		return
	}
	s.publishAsset(ctx, assetID)
}

// ReconcileStale re-enqueues assets whose tokenization never finished, e.g.
// because the process stopped while the job was in flight.
func (s *AssetService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	stale, err := s.assets.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, apperr.Storage("list stale assets", err)
	}

	n := 0
	for _, a := range stale {
		if err := s.EnqueueTokenization(a.ID); err != nil {
			s.log.Warn("re-enqueue failed", zap.String("asset_id", a.ID.String()), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (s *AssetService) publishAsset(ctx context.Context, assetID uuid.UUID) {
	a, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, events.ChannelAsset, events.Event{
		Type:       events.EventAssetUpdated,
		Recipients: []uuid.UUID{a.UserID},
		Payload: map[string]any{
			"asset_id": a.ID.String(),
			"status":   a.Status,
		},
	})
}
