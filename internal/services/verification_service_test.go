package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedAsset(t *testing.T, f *assetFixture, typ string, value int64, desc string) *models.Asset {
	t.Helper()
	a := &models.Asset{
		UserID:      f.owner.ID,
		Type:        typ,
		Value:       decimal.NewFromInt(value),
		Description: desc,
		Status:      models.AssetStatusPending,
	}
	require.NoError(t, f.assets.Create(context.Background(), a))
	return a
}

func TestVerifyAssetInvoiceRules(t *testing.T) {
	cases := []struct {
		name       string
		value      int64
		desc       string
		status     string
		confidence float64
	}{
		{"below minimum", 500, "Invoice for 500 units", models.AssetStatusVerificationFailed, 0.45},
		{"within range", 50000, "Invoice 2024-0042 ok", models.AssetStatusVerified, 0.95},
		{"above maximum", 3_000_000, "Invoice for a vessel", models.AssetStatusVerificationFailed, 0.45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAssetFixture(true)
			a := storedAsset(t, f, models.AssetTypeInvoice, tc.value, tc.desc)

			res, err := f.verify.VerifyAsset(context.Background(), f.owner, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Asset.Status)
			assert.Equal(t, tc.status, res.Log.Verdict)
			assert.InDelta(t, tc.confidence, res.Log.Confidence, 1e-9)
			require.NotNil(t, res.Asset.VerificationStatus)
			assert.Equal(t, tc.status, *res.Asset.VerificationStatus)
			assert.NotNil(t, res.Asset.VerifiedAt)
		})
	}
}

func TestVerifyAssetFailureMessage(t *testing.T) {
	f := newAssetFixture(true)
	a := storedAsset(t, f, models.AssetTypeInvoice, 500, "Invoice for 500 units")

	res, err := f.verify.VerifyAsset(context.Background(), f.owner, a.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Log.ErrorMessage)
	assert.Contains(t, *res.Log.ErrorMessage, "below the invoice minimum of 1000")
	assert.False(t, res.Log.Checks["value_in_range"])
	assert.True(t, res.Log.Checks["description_length"])
}

func TestVerifyAssetAccess(t *testing.T) {
	f := newAssetFixture(true)
	ctx := context.Background()
	a := storedAsset(t, f, models.AssetTypeDeposit, 5000, "Fixed term deposit")

	other := &auth.Principal{ID: uuid.New(), Role: "lender"}
	_, err := f.verify.VerifyAsset(ctx, other, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
	_, err = f.verify.Logs(ctx, other, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))

	admin := &auth.Principal{ID: uuid.New(), Role: "admin"}
	res, err := f.verify.VerifyAsset(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusVerified, res.Asset.Status)

	_, err = f.verify.VerifyAsset(ctx, f.owner, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestVerifyAssetWithoutOracle(t *testing.T) {
	f := newAssetFixture(false)
	a := storedAsset(t, f, models.AssetTypeDeposit, 5000, "Fixed term deposit")

	_, err := f.verify.VerifyAsset(context.Background(), f.owner, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestVerifyAssetSkipsNotifyBeforeTokenization(t *testing.T) {
	f := newAssetFixture(true)
	a := storedAsset(t, f, models.AssetTypeDeposit, 5000, "Fixed term deposit")

	_, err := f.verify.VerifyAsset(context.Background(), f.owner, a.ID)
	require.NoError(t, err)
	assert.Zero(t, f.ledger.notified.Load())
}
