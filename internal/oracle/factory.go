package oracle

import (
	"github.com/sme-lending/backend/internal/config"
	"go.uber.org/zap"
)

// FromConfig picks the ledger for ORACLE_MODE. It returns nil when the
// oracle is off; services treat a nil ledger as unavailable.
func FromConfig(cfg *config.Config, log *zap.Logger) Ledger {
	switch cfg.OracleMode {
	case config.OracleModeHTTP:
		log.Info("oracle: http", zap.String("url", cfg.OracleURL))
		return NewHTTPLedger(cfg.OracleURL, cfg.JobTimeout, log)
	case config.OracleModeOff:
		log.Warn("oracle disabled, tokenization and loan recording are skipped")
		return nil
	default:
		log.Info("oracle: mock", zap.Duration("latency", cfg.OracleLatency))
		return NewMockLedger(cfg.OracleLatency, log)
	}
}
