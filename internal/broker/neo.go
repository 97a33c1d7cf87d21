package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"neo-terminal/internal/errors"
	"neo-terminal/internal/models"
	"neo-terminal/pkg/utils"
)

// NeoConfig holds the credentials and endpoints of the Neo REST API.
type NeoConfig struct {
	BaseURL      string
	MobileNumber string
	Password     string
	MPIN         string
	TOTPSecret   string
	Timeout      time.Duration
	// RequestsPerSecond throttles outbound API calls. Zero disables
	// throttling.
	RequestsPerSecond float64
}

// NeoClient talks to the broker's REST API. It implements Client.
// Login must succeed before any other call.
type NeoClient struct {
	cfg     NeoConfig
	http    *http.Client
	limiter *rate.Limiter
	retry   utils.RetryConfig
	logger  zerolog.Logger

	sessionToken string
	sid          string
}

// NewNeoClient creates an unauthenticated client.
func NewNeoClient(cfg NeoConfig, logger zerolog.Logger) *NeoClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &NeoClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   utils.DefaultRetryConfig(),
		logger:  logger,
	}
}

// Login runs the three-step session flow: credential validation, TOTP
// validation, then MPIN validation. The TOTP code is generated from
// the configured secret.
func (c *NeoClient) Login(ctx context.Context) error {
	var step1 struct {
		Data struct {
			Token string `json:"token"`
			Sid   string `json:"sid"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/login/v2/validate", map[string]string{
		"mobileNumber": c.cfg.MobileNumber,
		"password":     c.cfg.Password,
	}, &step1); err != nil {
		return errors.NewUpstreamError("login", err)
	}
	c.sessionToken = step1.Data.Token
	c.sid = step1.Data.Sid

	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return errors.Wrap(err, "generating totp code")
	}
	var step2 struct {
		Data struct {
			Token string `json:"token"`
			Sid   string `json:"sid"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/login/v2/totp/validate", map[string]string{
		"mobileNumber": c.cfg.MobileNumber,
		"otp":          code,
	}, &step2); err != nil {
		return errors.NewUpstreamError("totp validate", err)
	}
	if step2.Data.Token != "" {
		c.sessionToken = step2.Data.Token
		c.sid = step2.Data.Sid
	}

	var step3 struct {
		Data struct {
			Token string `json:"token"`
			Sid   string `json:"sid"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/login/v2/totp/mpin", map[string]string{
		"mpin": c.cfg.MPIN,
	}, &step3); err != nil {
		return errors.NewUpstreamError("mpin validate", err)
	}
	if step3.Data.Token != "" {
		c.sessionToken = step3.Data.Token
		c.sid = step3.Data.Sid
	}

	c.logger.Info().Msg("broker session established")
	return nil
}

// SessionToken returns the live session token, empty before Login.
func (c *NeoClient) SessionToken() string { return c.sessionToken }

// Subscribe registers keys on the live feed.
func (c *NeoClient) Subscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	return c.feedRequest(ctx, "/feed/subscribe", keys, isIndex, isDepth)
}

// Unsubscribe removes keys from the live feed.
func (c *NeoClient) Unsubscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	return c.feedRequest(ctx, "/feed/unsubscribe", keys, isIndex, isDepth)
}

func (c *NeoClient) feedRequest(ctx context.Context, path string, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	tokens := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		tokens = append(tokens, map[string]string{
			"instrument_token": k.Token,
			"exchange_segment": k.Segment,
		})
	}
	payload := map[string]any{
		"instrument_tokens": tokens,
		"isIndex":           isIndex,
		"isDepth":           isDepth,
	}
	if err := c.post(ctx, path, payload, nil); err != nil {
		return errors.NewUpstreamError("feed "+path, err)
	}
	return nil
}

// QuoteSnapshot fetches a REST quote snapshot for the keys. The
// response's data array is returned raw; field spellings vary by
// instrument type, so normalization happens at the caller.
func (c *NeoClient) QuoteSnapshot(ctx context.Context, keys []models.InstrumentKey) ([]SnapshotRecord, error) {
	ids := ""
	for i, k := range keys {
		if i > 0 {
			ids += ","
		}
		ids += k.Token + "-" + k.Segment
	}
	return utils.RetryWithResult(ctx, c.retry, func() ([]SnapshotRecord, error) {
		var out struct {
			Data []SnapshotRecord `json:"data"`
		}
		if err := c.get(ctx, "/quotes?ids="+ids, &out); err != nil {
			return nil, errors.NewUpstreamError("quote snapshot", err)
		}
		return out.Data, nil
	})
}

// PlaceOrder submits a live order.
func (c *NeoClient) PlaceOrder(ctx context.Context, p OrderRequest) (OrderResult, error) {
	var out struct {
		OrderID string `json:"nOrdNo"`
		Status  string `json:"stat"`
		Message string `json:"errMsg"`
	}
	if err := c.post(ctx, "/orders", orderPayload(p), &out); err != nil {
		return OrderResult{}, errors.NewUpstreamError("place order", err)
	}
	return OrderResult{OrderID: out.OrderID, Status: out.Status, Message: out.Message}, nil
}

// ModifyOrder amends a live order.
func (c *NeoClient) ModifyOrder(ctx context.Context, orderID string, p OrderRequest) (OrderResult, error) {
	payload := orderPayload(p)
	payload["orderId"] = orderID
	var out struct {
		OrderID string `json:"nOrdNo"`
		Status  string `json:"stat"`
		Message string `json:"errMsg"`
	}
	if err := c.post(ctx, "/orders/modify", payload, &out); err != nil {
		return OrderResult{}, errors.NewUpstreamError("modify order", err)
	}
	return OrderResult{OrderID: out.OrderID, Status: out.Status, Message: out.Message}, nil
}

// CancelOrder cancels a live order.
func (c *NeoClient) CancelOrder(ctx context.Context, orderID string) (OrderResult, error) {
	var out struct {
		OrderID string `json:"nOrdNo"`
		Status  string `json:"stat"`
		Message string `json:"errMsg"`
	}
	if err := c.post(ctx, "/orders/cancel", map[string]string{"orderId": orderID}, &out); err != nil {
		return OrderResult{}, errors.NewUpstreamError("cancel order", err)
	}
	return OrderResult{OrderID: out.OrderID, Status: out.Status, Message: out.Message}, nil
}

// OrderReport fetches the day's order report.
func (c *NeoClient) OrderReport(ctx context.Context) ([]OrderReportRow, error) {
	var out struct {
		Data []struct {
			OrderID         string  `json:"nOrdNo"`
			Status          string  `json:"ordSt"`
			TradingSymbol   string  `json:"trdSym"`
			TransactionType string  `json:"trnsTp"`
			Quantity        int     `json:"qty"`
			FilledQuantity  int     `json:"fldQty"`
			Price           float64 `json:"prc,string"`
			RejectionReason string  `json:"rejRsn"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/orders", &out); err != nil {
		return nil, errors.NewUpstreamError("order report", err)
	}
	rows := make([]OrderReportRow, 0, len(out.Data))
	for _, r := range out.Data {
		rows = append(rows, OrderReportRow{
			OrderID:         r.OrderID,
			Status:          r.Status,
			TradingSymbol:   r.TradingSymbol,
			TransactionType: r.TransactionType,
			Quantity:        r.Quantity,
			FilledQuantity:  r.FilledQuantity,
			Price:           r.Price,
			RejectionReason: r.RejectionReason,
		})
	}
	return rows, nil
}

func orderPayload(p OrderRequest) map[string]any {
	return map[string]any{
		"trdSym": p.TradingSymbol,
		"exSeg":  p.ExchangeSegment,
		"trnsTp": string(p.TransactionType),
		"ordTp":  string(p.OrderType),
		"prod":   string(p.Product),
		"qty":    p.Quantity,
		"prc":    fmt.Sprintf("%.2f", p.Price),
		"trgPrc": fmt.Sprintf("%.2f", p.TriggerPrice),
		"rt":     p.Validity,
		"tag":    p.Tag,
	}
}

func (c *NeoClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *NeoClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *NeoClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
	if c.sid != "" {
		req.Header.Set("Sid", c.sid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 256))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
