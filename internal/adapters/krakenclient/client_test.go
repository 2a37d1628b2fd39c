package krakenclient

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krakenTrailBot/internal/ports"
)

type mockLogger struct {
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// testSecret is a valid base64 string usable as an API secret in tests.
var testSecret = base64.StdEncoding.EncodeToString([]byte("test-secret-key-material"))

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{
		APIKey:    "test-key",
		APISecret: testSecret,
		BaseURL:   server.URL,
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)
	return client, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
}

func TestNew(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := New(Config{APIKey: "k", APISecret: testSecret})
		assert.Error(t, err)
	})

	t.Run("rejects non-base64 secret", func(t *testing.T) {
		_, err := New(Config{APIKey: "k", APISecret: "!!not-base64!!", Logger: &mockLogger{}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidAPIKeys)
	})

	t.Run("warns on missing credentials", func(t *testing.T) {
		logger := &mockLogger{}
		_, err := New(Config{Logger: logger})
		require.NoError(t, err)
		assert.NotEmpty(t, logger.warnMsgs)
	})
}

func TestGetLastPrice(t *testing.T) {
	t.Run("parses last trade price from the first ticker entry", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/0/public/Ticker", r.URL.Path)
			assert.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
			writeJSON(t, w, `{"error":[],"result":{"XXBTZUSD":{"c":["100.5","0.1"]}}}`)
		}))

		price, err := client.GetLastPrice(context.Background(), "XBTUSD")
		require.NoError(t, err)
		assert.Equal(t, 100.5, price)
	})

	t.Run("unknown pair maps to ErrUnknownPair", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":["EQuery:Unknown asset pair"],"result":{}}`)
		}))

		_, err := client.GetLastPrice(context.Background(), "NOPEUSD")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrUnknownPair)
	})

	t.Run("empty result maps to ErrUnknownPair", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":[],"result":{}}`)
		}))

		_, err := client.GetLastPrice(context.Background(), "XBTUSD")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrUnknownPair)
	})

	t.Run("server error maps to ErrExchangeUnavailable", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.GetLastPrice(context.Background(), "XBTUSD")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
	})
}

func TestGetBalances(t *testing.T) {
	t.Run("parses balances and signs the request", func(t *testing.T) {
		var gotKey, gotSign string
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/0/private/Balance", r.URL.Path)
			gotKey = r.Header.Get("API-Key")
			gotSign = r.Header.Get("API-Sign")
			require.NoError(t, r.ParseForm())
			assert.NotEmpty(t, r.PostForm.Get("nonce"))
			writeJSON(t, w, `{"error":[],"result":{"XXBT":"0.5","ZUSD":"2500.0000","KFEE":"42"}}`)
		}))

		balances, err := client.GetBalances(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "test-key", gotKey)
		assert.NotEmpty(t, gotSign)
		assert.Equal(t, map[string]float64{"XXBT": 0.5, "ZUSD": 2500, "KFEE": 42}, balances)
	})

	t.Run("skips unparseable balances", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":[],"result":{"XXBT":"0.5","BAD":"not-a-number"}}`)
		}))

		balances, err := client.GetBalances(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"XXBT": 0.5}, balances)
	})

	t.Run("invalid key maps to ErrInvalidAPIKeys", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":["EAPI:Invalid key"],"result":{}}`)
		}))

		_, err := client.GetBalances(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidAPIKeys)
	})

	t.Run("requires credentials", func(t *testing.T) {
		client, err := New(Config{Logger: &mockLogger{}})
		require.NoError(t, err)

		_, err = client.GetBalances(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidAPIKeys)
	})
}

func TestGetAssetInfo(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Assets", r.URL.Path)
		writeJSON(t, w, `{"error":[],"result":{"XXBT":{"altname":"XBT"},"ZUSD":{"altname":"USD"}}}`)
	}))

	info, err := client.GetAssetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "XBT", info["XXBT"].Altname)
	assert.Equal(t, "USD", info["ZUSD"].Altname)
}

func TestPlaceMarketSell(t *testing.T) {
	t.Run("sends a market sell with client reference", func(t *testing.T) {
		var form url.Values
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/0/private/AddOrder", r.URL.Path)
			require.NoError(t, r.ParseForm())
			form = r.PostForm
			writeJSON(t, w, `{"error":[],"result":{"descr":{"order":"sell 0.5 XBTUSD @ market"},"txid":["OABC12-DEF34-GHI56"]}}`)
		}))

		resp, err := client.PlaceMarketSell(context.Background(), "XBTUSD", 0.5, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, "OABC12-DEF34-GHI56", resp.TxID)
		assert.Equal(t, "sell 0.5 XBTUSD @ market", resp.Description)

		assert.Equal(t, "XBTUSD", form.Get("pair"))
		assert.Equal(t, "sell", form.Get("type"))
		assert.Equal(t, "market", form.Get("ordertype"))
		assert.Equal(t, "0.5", form.Get("volume"))
		assert.Equal(t, "ref-1", form.Get("cl_ord_id"))
	})

	t.Run("insufficient funds maps to ErrInsufficientFunds", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":["EOrder:Insufficient funds"],"result":{}}`)
		}))

		_, err := client.PlaceMarketSell(context.Background(), "XBTUSD", 0.5, "ref-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	})

	t.Run("order rejection maps to ErrOrderPlacementFailed", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, `{"error":["EOrder:Order minimum not met"],"result":{}}`)
		}))

		_, err := client.PlaceMarketSell(context.Background(), "XBTUSD", 0.0001, "ref-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrOrderPlacementFailed)
	})
}

func TestPing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Time", r.URL.Path)
		writeJSON(t, w, `{"error":[],"result":{"unixtime":1709290000}}`)
	}))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestSign_Deterministic(t *testing.T) {
	client, err := New(Config{APIKey: "k", APISecret: testSecret, Logger: &mockLogger{}})
	require.NoError(t, err)

	sig1 := client.sign("/0/private/AddOrder", "1616492376594", "nonce=1616492376594&ordertype=market")
	sig2 := client.sign("/0/private/AddOrder", "1616492376594", "nonce=1616492376594&ordertype=market")
	assert.Equal(t, sig1, sig2)

	decoded, err := base64.StdEncoding.DecodeString(sig1)
	require.NoError(t, err)
	assert.Len(t, decoded, 64) // SHA-512 digest length

	// Any change to the inputs must change the signature.
	assert.NotEqual(t, sig1, client.sign("/0/private/Balance", "1616492376594", "nonce=1616492376594&ordertype=market"))
	assert.NotEqual(t, sig1, client.sign("/0/private/AddOrder", "1616492376595", "nonce=1616492376594&ordertype=market"))
}

func TestNextNonce_StrictlyIncreasing(t *testing.T) {
	client, err := New(Config{APIKey: "k", APISecret: testSecret, Logger: &mockLogger{}})
	require.NoError(t, err)

	prev := ""
	for i := 0; i < 100; i++ {
		n := client.nextNonce()
		assert.Greater(t, len(n), 0)
		if prev != "" {
			assert.Greater(t, n, prev) // same width, lexical order holds
		}
		prev = n
	}
}
