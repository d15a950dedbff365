package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sme-lending/backend/internal/models"
)

const MethodRuleBased = "rule_based_v1"

// Risk levels
const (
	RiskLow  = "low"
	RiskHigh = "high"
)

const (
	confidencePass = 0.95
	confidenceFail = 0.45
)

type valueRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

var rules = map[string]valueRange{
	models.AssetTypeDeposit:       {decimal.NewFromInt(1_000), decimal.NewFromInt(1_000_000)},
	models.AssetTypePurchaseOrder: {decimal.NewFromInt(5_000), decimal.NewFromInt(5_000_000)},
	models.AssetTypeInvoice:       {decimal.NewFromInt(1_000), decimal.NewFromInt(2_000_000)},
}

// ValueRange reports the accepted value bounds for an asset type.
func ValueRange(assetType string) (lo, hi decimal.Decimal, ok bool) {
	r, ok := rules[assetType]
	return r.Min, r.Max, ok
}

type Verdict struct {
	Status     string          `json:"status"`
	Method     string          `json:"method"`
	Confidence float64         `json:"confidence"`
	RiskLevel  string          `json:"risk_level"`
	Checks     map[string]bool `json:"checks"`
	Error      string          `json:"error,omitempty"`
}

func (v Verdict) Passed() bool { return v.Status == models.AssetStatusVerified }

// Data is the shape stored in assets.verification_data.
func (v Verdict) Data() map[string]any {
	d := map[string]any{
		"method":     v.Method,
		"confidence": v.Confidence,
		"risk_level": v.RiskLevel,
		"checks":     v.Checks,
	}
	if v.Error != "" {
		d["error"] = v.Error
	}
	return d
}

// Verifier scores assets against the per-type acceptance rules.
type Verifier struct {
	latency time.Duration
}

func NewVerifier(latency time.Duration) *Verifier {
	return &Verifier{latency: latency}
}

// Verify waits the simulated round-trip latency and then evaluates the asset.
func (v *Verifier) Verify(ctx context.Context, a *models.Asset) (Verdict, error) {
	if err := sleep(ctx, v.latency); err != nil {
		return Verdict{}, err
	}
	return Evaluate(a), nil
}

// Evaluate applies the rules without any latency.
func Evaluate(a *models.Asset) Verdict {
	checks := map[string]bool{}
	var problems []string

	rule, known := rules[a.Type]
	checks["known_type"] = known
	if !known {
		problems = append(problems, fmt.Sprintf("unsupported asset type %q", a.Type))
	}

	desc := strings.TrimSpace(a.Description)
	checks["has_description"] = desc != ""
	checks["has_value"] = a.Value.IsPositive()
	if desc == "" {
		problems = append(problems, "description is required")
	}
	if !a.Value.IsPositive() {
		problems = append(problems, "value is required")
	}

	checks["description_length"] = len([]rune(desc)) >= models.MinAssetDescriptionLen
	if desc != "" && !checks["description_length"] {
		problems = append(problems, fmt.Sprintf("description must be at least %d characters", models.MinAssetDescriptionLen))
	}

	inRange := known && a.Value.GreaterThanOrEqual(rule.Min) && a.Value.LessThanOrEqual(rule.Max)
	checks["value_in_range"] = inRange
	if known && a.Value.IsPositive() && !inRange {
		if a.Value.LessThan(rule.Min) {
			problems = append(problems, fmt.Sprintf("value %s is below the %s minimum of %s", a.Value, a.Type, rule.Min))
		} else {
			problems = append(problems, fmt.Sprintf("value %s exceeds the %s maximum of %s", a.Value, a.Type, rule.Max))
		}
	}

	if len(problems) == 0 {
		return Verdict{
			Status:     models.AssetStatusVerified,
			Method:     MethodRuleBased,
			Confidence: confidencePass,
			RiskLevel:  RiskLow,
			Checks:     checks,
		}
	}
	return Verdict{
		Status:     models.AssetStatusVerificationFailed,
		Method:     MethodRuleBased,
		Confidence: confidenceFail,
		RiskLevel:  RiskHigh,
		Checks:     checks,
		Error:      strings.Join(problems, "; "),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
