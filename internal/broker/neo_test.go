package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo-terminal/internal/errors"
	"neo-terminal/internal/models"
)

func newTestClientServer(t *testing.T, handler http.HandlerFunc) (*NeoClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewNeoClient(NeoConfig{
		BaseURL:      srv.URL,
		MobileNumber: "9999999999",
		Password:     "secret",
		MPIN:         "123456",
		TOTPSecret:   "JBSWY3DPEHPK3PXP",
	}, zerolog.Nop())
	return client, srv
}

func TestLoginThreeSteps(t *testing.T) {
	var paths []string
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/login/v2/validate":
			assert.Equal(t, "9999999999", body["mobileNumber"])
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "view-token", "sid": "sid-1"}})
		case "/login/v2/totp/validate":
			assert.Len(t, body["otp"], 6)
			assert.Equal(t, "Bearer view-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "totp-token", "sid": "sid-2"}})
		case "/login/v2/totp/mpin":
			assert.Equal(t, "123456", body["mpin"])
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "session-token", "sid": "sid-3"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, []string{"/login/v2/validate", "/login/v2/totp/validate", "/login/v2/totp/mpin"}, paths)
	assert.Equal(t, "session-token", client.SessionToken())
}

func TestLoginFailure(t *testing.T) {
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	})

	err := client.Login(context.Background())
	require.Error(t, err)
	var uerr *errors.UpstreamError
	assert.True(t, errors.As(err, &uerr))
}

func TestQuoteSnapshot(t *testing.T) {
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "11536-nse_cm", r.URL.Query().Get("ids"))
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"tk": "11536", "close": 3510.0, "open": 3500.0},
		}})
	})

	records, err := client.QuoteSnapshot(context.Background(), []models.InstrumentKey{{Token: "11536", Segment: "nse_cm"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3510.0, records[0]["close"])
}

func TestQuoteSnapshotRetriesTransientFailure(t *testing.T) {
	var calls int
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"close": 100.0}}})
	})

	records, err := client.QuoteSnapshot(context.Background(), []models.InstrumentKey{{Token: "1", Segment: "nse_cm"}})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, records, 1)
}

func TestSubscribePayload(t *testing.T) {
	var payload map[string]any
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feed/subscribe", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	})

	keys := []models.InstrumentKey{{Token: "11536", Segment: "nse_cm"}}
	require.NoError(t, client.Subscribe(context.Background(), keys, false, true))

	assert.Equal(t, true, payload["isDepth"])
	assert.Equal(t, false, payload["isIndex"])
	tokens := payload["instrument_tokens"].([]any)
	require.Len(t, tokens, 1)
	first := tokens[0].(map[string]any)
	assert.Equal(t, "11536", first["instrument_token"])
	assert.Equal(t, "nse_cm", first["exchange_segment"])
}

func TestPlaceOrderRequest(t *testing.T) {
	var payload map[string]any
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]string{"nOrdNo": "240829000042", "stat": "Ok"})
	})

	res, err := client.PlaceOrder(context.Background(), OrderRequest{
		TradingSymbol:   "TCS-EQ",
		ExchangeSegment: "nse_cm",
		TransactionType: models.TransactionBuy,
		OrderType:       models.OrderTypeLimit,
		Product:         models.ProductMIS,
		Quantity:        10,
		Price:           3500.5,
		Validity:        "DAY",
	})
	require.NoError(t, err)
	assert.Equal(t, "240829000042", res.OrderID)
	assert.Equal(t, "TCS-EQ", payload["trdSym"])
	assert.Equal(t, "B", payload["trnsTp"])
	assert.Equal(t, "3500.50", payload["prc"])
}

func TestCancelOrder(t *testing.T) {
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/cancel", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"nOrdNo": "X", "stat": "Ok"})
	})
	res, err := client.CancelOrder(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "X", res.OrderID)
}

func TestOrderReport(t *testing.T) {
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"nOrdNo": "1", "ordSt": "complete", "trdSym": "TCS-EQ", "qty": 10, "fldQty": 10, "prc": "3500.50"},
		}})
	})

	rows, err := client.OrderReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "complete", rows[0].Status)
	assert.Equal(t, 3500.50, rows[0].Price)
}

func TestRateLimitedResponse(t *testing.T) {
	client, _ := newTestClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	err := client.Subscribe(context.Background(), []models.InstrumentKey{{Token: "1", Segment: "nse_cm"}}, false, false)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
}
