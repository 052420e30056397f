package mt5bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, Logger: noopLogger{}})
	require.NoError(t, err)
	return client, srv
}

func TestNew(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := New(Config{BaseURL: "http://localhost:8228"})
		assert.Error(t, err)
	})

	t.Run("requires base URL", func(t *testing.T) {
		_, err := New(Config{Logger: noopLogger{}})
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestConnect(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			w.Write([]byte(`{"login": 12345, "token": "abc"}`))
		})
		client, _ := newTestClient(t, mux)

		sess, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
		require.NoError(t, err)
		assert.Equal(t, int64(12345), sess.Login())
	})

	t.Run("account mismatch", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"login": 99999, "token": "abc"}`))
		})
		client, _ := newTestClient(t, mux)

		_, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
		assert.ErrorIs(t, err, ports.ErrAccountMismatch)
	})

	t.Run("auth failure maps to sentinel", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"code": -7, "message": "authorization failed"}}`))
		})
		client, _ := newTestClient(t, mux)

		_, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
		assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	})

	t.Run("terminal down maps to unavailable", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error": {"code": -10004, "message": "no IPC connection"}}`))
		})
		client, _ := newTestClient(t, mux)

		_, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
		assert.ErrorIs(t, err, ports.ErrTerminalUnavailable)
	})
}

func TestSessionDeals(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login": 12345, "token": "abc"}`))
	})
	mux.HandleFunc("/accounts/12345/deals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("from_msc"))
		assert.NotEmpty(t, r.URL.Query().Get("to_msc"))
		w.Write([]byte(`[
			{"ticket": 1, "order": 10, "position_id": 42, "time_msc": 1767225600000,
			 "symbol": "EURUSD", "magic": 7, "type": 0, "entry": 0,
			 "volume": 1.0, "price": 1.1, "profit": 0, "commission": -1, "swap": 0},
			{"ticket": 2, "order": 0, "position_id": 0, "time_msc": 1767225700000,
			 "magic": 0, "type": 2, "entry": 0, "profit": 10000}
		]`))
	})
	client, _ := newTestClient(t, mux)

	sess, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
	require.NoError(t, err)

	deals, err := sess.Deals(context.Background(), time.UnixMilli(0), time.Now())
	require.NoError(t, err)
	require.Len(t, deals, 2)

	trade := deals[0]
	assert.Equal(t, int64(1), trade.ID)
	assert.Equal(t, int64(42), trade.PositionID)
	assert.Equal(t, domain.DealBuy, trade.Type)
	assert.Equal(t, domain.EntryIn, trade.Entry)
	assert.Equal(t, domain.StrategyTag(7), trade.Strategy)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), trade.Time)
	assert.True(t, trade.IsTradeDeal())

	deposit := deals[1]
	assert.Equal(t, domain.DealBalance, deposit.Type)
	assert.Equal(t, domain.EntryNone, deposit.Entry)
	assert.True(t, deposit.IsBalanceOp())
	assert.False(t, deposit.IsTradeDeal())
}

func TestSessionSnapshotAndPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login": 12345, "token": "abc"}`))
	})
	mux.HandleFunc("/accounts/12345/summary", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("token"))
		w.Write([]byte(`{"login": 12345, "name": "Demo", "server": "Broker-Demo",
			"currency": "USD", "balance": 10000, "equity": 10050,
			"margin_free": 9000, "profit": 50}`))
	})
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.Ping(context.Background()))

	sess, err := client.Connect(context.Background(), ports.AccountCredentials{Login: 12345})
	require.NoError(t, err)

	snap, err := sess.AccountSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Demo", snap.Name)
	assert.Equal(t, "USD", snap.Currency)
	assert.InDelta(t, 10050, snap.Equity, 1e-9)
	assert.InDelta(t, 50, snap.FloatingProfit, 1e-9)
}

func TestTranslateDeal(t *testing.T) {
	tests := []struct {
		name      string
		raw       dealJSON
		wantType  domain.DealType
		wantEntry domain.DealEntry
	}{
		{"buy in", dealJSON{Type: 0, Entry: 0, PositionID: 1}, domain.DealBuy, domain.EntryIn},
		{"sell out", dealJSON{Type: 1, Entry: 1, PositionID: 1}, domain.DealSell, domain.EntryOut},
		{"sell inout", dealJSON{Type: 1, Entry: 2, PositionID: 1}, domain.DealSell, domain.EntryInOut},
		{"buy out_by", dealJSON{Type: 0, Entry: 3, PositionID: 1}, domain.DealBuy, domain.EntryOutBy},
		{"balance", dealJSON{Type: 2, Entry: 0}, domain.DealBalance, domain.EntryNone},
		{"credit", dealJSON{Type: 3, Entry: 0}, domain.DealCredit, domain.EntryNone},
		{"unknown type", dealJSON{Type: 17, Entry: 0}, domain.DealOther, domain.EntryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := translateDeal(tt.raw)
			assert.Equal(t, tt.wantType, deal.Type)
			assert.Equal(t, tt.wantEntry, deal.Entry)
		})
	}
}
