package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"
)

const mockGenesisBlock = 40_000_000

// MockLedger simulates the tokenization service. Identifiers are derived
// from the request so repeating a call for the same entity returns the same
// chain id and transaction hash.
type MockLedger struct {
	latency time.Duration
	block   atomic.Int64
	log     *zap.Logger
}

func NewMockLedger(latency time.Duration, log *zap.Logger) *MockLedger {
	m := &MockLedger{latency: latency, log: log}
	m.block.Store(mockGenesisBlock)
	return m
}

func (m *MockLedger) TokenizeAsset(ctx context.Context, req TokenizeRequest) (*TokenizeResult, error) {
	if err := sleep(ctx, m.latency); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte("asset:" + req.AssetID.String()))
	res := &TokenizeResult{
		ChainAssetID: ChainAddress(sum[:]),
		TxHash:       txHash("tokenize", req.AssetID.String()),
		BlockNumber:  m.block.Add(1),
	}
	m.log.Debug("mock ledger tokenized asset",
		zap.String("asset_id", req.AssetID.String()),
		zap.String("chain_asset_id", res.ChainAssetID),
	)
	return res, nil
}

func (m *MockLedger) NotifyVerification(ctx context.Context, chainAssetID string, v Verdict) (*Receipt, error) {
	if err := sleep(ctx, m.latency); err != nil {
		return nil, err
	}
	return &Receipt{TxHash: txHash("verify", chainAssetID, v.Status), BlockNumber: m.block.Add(1)}, nil
}

func (m *MockLedger) RecordLoan(ctx context.Context, rec LoanRecord) (*Receipt, error) {
	if err := sleep(ctx, m.latency); err != nil {
		return nil, err
	}
	return &Receipt{TxHash: txHash("loan", rec.LoanID.String()), BlockNumber: m.block.Add(1)}, nil
}

func (m *MockLedger) FundLoan(ctx context.Context, f LoanFunding) (*Receipt, error) {
	if err := sleep(ctx, m.latency); err != nil {
		return nil, err
	}
	return &Receipt{TxHash: txHash("fund", f.LoanID.String(), f.LenderID.String()), BlockNumber: m.block.Add(1)}, nil
}

// ChainAddress renders a 32-byte account hash as a basechain address.
func ChainAddress(hash []byte) string {
	return address.NewAddress(0, 0, hash).String()
}

func txHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
