package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"
)

// HTTPLedger talks to an external tokenization oracle over JSON.
type HTTPLedger struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPLedger(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPLedger {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *HTTPLedger) TokenizeAsset(ctx context.Context, req TokenizeRequest) (*TokenizeResult, error) {
	var res TokenizeResult
	if err := c.post(ctx, "/v1/assets/tokenize", req, &res); err != nil {
		return nil, err
	}
	if _, err := address.ParseAddr(res.ChainAssetID); err != nil {
		return nil, fmt.Errorf("oracle returned malformed chain asset id %q: %w", res.ChainAssetID, err)
	}
	return &res, nil
}

func (c *HTTPLedger) NotifyVerification(ctx context.Context, chainAssetID string, v Verdict) (*Receipt, error) {
	body := map[string]any{
		"chain_asset_id": chainAssetID,
		"verdict":        v,
	}
	var res Receipt
	if err := c.post(ctx, "/v1/assets/verification", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPLedger) RecordLoan(ctx context.Context, rec LoanRecord) (*Receipt, error) {
	var res Receipt
	if err := c.post(ctx, "/v1/loans", rec, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPLedger) FundLoan(ctx context.Context, f LoanFunding) (*Receipt, error) {
	var res Receipt
	if err := c.post(ctx, fmt.Sprintf("/v1/loans/%s/fund", f.LoanID), f, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StatusError is returned for non-2xx oracle responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsPermanent reports errors that retrying cannot fix.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && !se.Temporary()
}

func (c *HTTPLedger) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oracle unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn("oracle request failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
