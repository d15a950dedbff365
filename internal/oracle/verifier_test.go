package oracle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asset(typ string, value int64, desc string) *models.Asset {
	return &models.Asset{Type: typ, Value: decimal.NewFromInt(value), Description: desc}
}

func TestEvaluate(t *testing.T) {
	desc20 := strings.Repeat("x", 20)

	tests := []struct {
		name   string
		asset  *models.Asset
		status string
		errHas string
	}{
		{"invoice below minimum", asset(models.AssetTypeInvoice, 500, desc20), models.AssetStatusVerificationFailed, "below the invoice minimum"},
		{"invoice in range", asset(models.AssetTypeInvoice, 50_000, desc20), models.AssetStatusVerified, ""},
		{"invoice at max", asset(models.AssetTypeInvoice, 2_000_000, desc20), models.AssetStatusVerified, ""},
		{"invoice above max", asset(models.AssetTypeInvoice, 2_000_001, desc20), models.AssetStatusVerificationFailed, "exceeds"},
		{"deposit at min", asset(models.AssetTypeDeposit, 1_000, desc20), models.AssetStatusVerified, ""},
		{"deposit above max", asset(models.AssetTypeDeposit, 1_000_001, desc20), models.AssetStatusVerificationFailed, "exceeds"},
		{"purchase order below min", asset(models.AssetTypePurchaseOrder, 4_999, desc20), models.AssetStatusVerificationFailed, "minimum of 5000"},
		{"purchase order in range", asset(models.AssetTypePurchaseOrder, 5_000_000, desc20), models.AssetStatusVerified, ""},
		{"short description", asset(models.AssetTypeDeposit, 5_000, "too short"), models.AssetStatusVerificationFailed, "at least 10"},
		{"missing description", asset(models.AssetTypeDeposit, 5_000, "   "), models.AssetStatusVerificationFailed, "description is required"},
		{"missing value", asset(models.AssetTypeDeposit, 0, desc20), models.AssetStatusVerificationFailed, "value is required"},
		{"unknown type", asset("bond", 5_000, desc20), models.AssetStatusVerificationFailed, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.asset)
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, MethodRuleBased, v.Method)
			if tt.status == models.AssetStatusVerified {
				assert.True(t, v.Passed())
				assert.Equal(t, 0.95, v.Confidence)
				assert.Equal(t, RiskLow, v.RiskLevel)
				assert.Empty(t, v.Error)
				for name, ok := range v.Checks {
					assert.True(t, ok, "check %s", name)
				}
			} else {
				assert.False(t, v.Passed())
				assert.Equal(t, 0.45, v.Confidence)
				assert.Equal(t, RiskHigh, v.RiskLevel)
				assert.Contains(t, v.Error, tt.errHas)
			}
		})
	}
}

func TestVerdictData(t *testing.T) {
	v := Evaluate(asset(models.AssetTypeInvoice, 500, strings.Repeat("x", 20)))
	d := v.Data()
	assert.Equal(t, RiskHigh, d["risk_level"])
	assert.Contains(t, d, "error")
	assert.Equal(t, false, d["checks"].(map[string]bool)["value_in_range"])
}

func TestVerifierHonoursContext(t *testing.T) {
	v := NewVerifier(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, asset(models.AssetTypeInvoice, 50_000, strings.Repeat("x", 20)))
	require.ErrorIs(t, err, context.Canceled)
}
