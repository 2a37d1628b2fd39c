package krakenclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"krakenTrailBot/internal/ports"
)

const (
	baseURLProduction = "https://api.kraken.com"
	defaultTimeout    = 30 * time.Second
)

// Client implements the ports.ExchangeClient interface against the Kraken
// spot REST API using resty.
type Client struct {
	http      *resty.Client
	apiKey    string
	apiSecret []byte // base64-decoded private key
	logger    ports.Logger
	lastNonce int64
}

// Config holds configuration specific to the Kraken client adapter.
type Config struct {
	APIKey    string
	APISecret string // base64-encoded, as issued by Kraken
	BaseURL   string // override for tests; defaults to the production API
	Timeout   time.Duration
	Logger    ports.Logger
}

// New creates a new Kraken client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kraken client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or APISecret is empty. Client will only work for public endpoints.")
	}

	var secret []byte
	if cfg.APISecret != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.APISecret)
		if err != nil {
			return nil, fmt.Errorf("API secret is not valid base64: %w: %w", ports.ErrInvalidAPIKeys, err)
		}
		secret = decoded
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = baseURLProduction
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "krakenTrailBot/1.0")

	cfg.Logger.Info(context.Background(), "Kraken client configured", map[string]interface{}{"baseURL": baseURL})

	return &Client{
		http:      httpClient,
		apiKey:    cfg.APIKey,
		apiSecret: secret,
		logger:    cfg.Logger,
	}, nil
}

// apiResponse is the envelope every Kraken endpoint returns.
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// mapError translates Kraken "E..." error strings into standardized ports errors.
func (c *Client) mapError(ctx context.Context, op string, apiErrors []string) error {
	joined := strings.Join(apiErrors, "; ")
	var mappedErr error
	switch {
	case containsAny(apiErrors, "Unknown asset pair", "Unknown asset"):
		mappedErr = ports.ErrUnknownPair
	case containsAny(apiErrors, "EAPI:Invalid key"):
		mappedErr = ports.ErrInvalidAPIKeys
	case containsAny(apiErrors, "EAPI:Invalid signature", "EAPI:Invalid nonce"):
		mappedErr = ports.ErrAuthenticationFailed
	case containsAny(apiErrors, "Rate limit", "Too many requests"):
		mappedErr = ports.ErrRateLimited
	case containsAny(apiErrors, "Insufficient funds"):
		mappedErr = ports.ErrInsufficientFunds
	case containsAny(apiErrors, "EOrder:"):
		mappedErr = ports.ErrOrderPlacementFailed
	case containsAny(apiErrors, "EService:"):
		mappedErr = ports.ErrExchangeUnavailable
	default:
		mappedErr = ports.ErrUnknown
	}
	err := fmt.Errorf("%s failed: %w: kraken: %s", op, mappedErr, joined)
	// Unknown pairs are an expected per-asset condition, not worth an error line.
	if !errors.Is(mappedErr, ports.ErrUnknownPair) {
		c.logger.Error(ctx, err, op+" failed with API error", map[string]interface{}{"apiErrors": joined})
	}
	return err
}

func containsAny(errs []string, substrings ...string) bool {
	for _, e := range errs {
		for _, sub := range substrings {
			if strings.Contains(e, sub) {
				return true
			}
		}
	}
	return false
}

// transportError classifies request-level failures (network, context).
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, op+" failed", nil)
	return finalErr
}

// public performs an unauthenticated GET against /0/public/<endpoint>.
func (c *Client) public(ctx context.Context, op, endpoint string, params map[string]string, out interface{}) error {
	var envelope apiResponse
	req := c.http.R().SetContext(ctx).SetResult(&envelope)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get("/0/public/" + endpoint)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s failed: %w: HTTP %d", op, ports.ErrExchangeUnavailable, resp.StatusCode())
	}
	if len(envelope.Error) > 0 {
		return c.mapError(ctx, op, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s failed to decode result: %w: %w", op, ports.ErrUnknown, err)
		}
	}
	return nil
}

// private performs a signed POST against /0/private/<endpoint>.
func (c *Client) private(ctx context.Context, op, endpoint string, form url.Values, out interface{}) error {
	if c.apiKey == "" || len(c.apiSecret) == 0 {
		return fmt.Errorf("%s requires API credentials: %w", op, ports.ErrInvalidAPIKeys)
	}
	if form == nil {
		form = url.Values{}
	}
	nonce := c.nextNonce()
	form.Set("nonce", nonce)
	path := "/0/private/" + endpoint
	body := form.Encode()

	var envelope apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", c.sign(path, nonce, body)).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(body).
		SetResult(&envelope).
		Post(path)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s failed: %w: HTTP %d", op, ports.ErrExchangeUnavailable, resp.StatusCode())
	}
	if len(envelope.Error) > 0 {
		return c.mapError(ctx, op, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s failed to decode result: %w: %w", op, ports.ErrUnknown, err)
		}
	}
	return nil
}

// nextNonce returns a strictly increasing millisecond nonce.
func (c *Client) nextNonce() string {
	for {
		last := atomic.LoadInt64(&c.lastNonce)
		next := time.Now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapInt64(&c.lastNonce, last, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}

// sign computes the Kraken API-Sign header:
// HMAC-SHA512(path + SHA256(nonce + postData)) keyed with the decoded secret.
func (c *Client) sign(path, nonce, postData string) string {
	digest := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, c.apiSecret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// GetBalances retrieves all account balances keyed by internal asset code.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	op := "GetBalances"
	var raw map[string]string
	if err := c.private(ctx, op, "Balance", nil, &raw); err != nil {
		return nil, err
	}
	balances := make(map[string]float64, len(raw))
	for code, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.logger.Warn(ctx, op+": unparseable balance, skipping asset", map[string]interface{}{"assetCode": code, "value": s})
			continue
		}
		balances[code] = v
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"assets": len(balances)})
	return balances, nil
}

// GetAssetInfo retrieves asset metadata keyed by internal asset code.
func (c *Client) GetAssetInfo(ctx context.Context) (map[string]ports.AssetInfo, error) {
	op := "GetAssetInfo"
	var raw map[string]struct {
		Altname string `json:"altname"`
	}
	if err := c.public(ctx, op, "Assets", nil, &raw); err != nil {
		return nil, err
	}
	info := make(map[string]ports.AssetInfo, len(raw))
	for code, a := range raw {
		info[code] = ports.AssetInfo{Altname: a.Altname}
	}
	return info, nil
}

// GetLastPrice retrieves the last trade price for a pair.
func (c *Client) GetLastPrice(ctx context.Context, pair string) (float64, error) {
	op := "GetLastPrice"
	// The result key may differ from the requested pair (e.g. "XXBTZUSD" for
	// "XBTUSD"), so take the first entry.
	var raw map[string]struct {
		C []string `json:"c"` // [last trade price, lot volume]
	}
	if err := c.public(ctx, op, "Ticker", map[string]string{"pair": pair}, &raw); err != nil {
		return 0, err
	}
	for _, ticker := range raw {
		if len(ticker.C) == 0 {
			break
		}
		price, err := strconv.ParseFloat(ticker.C[0], 64)
		if err != nil {
			return 0, fmt.Errorf("%s failed to parse price %q for %s: %w: %w", op, ticker.C[0], pair, ports.ErrUnknown, err)
		}
		return price, nil
	}
	return 0, fmt.Errorf("%s returned no ticker data for %s: %w", op, pair, ports.ErrUnknownPair)
}

// PlaceMarketSell places a full market sell for the given quantity.
func (c *Client) PlaceMarketSell(ctx context.Context, pair string, quantity float64, clientRef string) (*ports.OrderResponse, error) {
	op := "PlaceMarketSell"
	form := url.Values{}
	form.Set("pair", pair)
	form.Set("type", "sell")
	form.Set("ordertype", "market")
	form.Set("volume", strconv.FormatFloat(quantity, 'f', -1, 64))
	if clientRef != "" {
		form.Set("cl_ord_id", clientRef)
	}

	var result struct {
		Descr struct {
			Order string `json:"order"`
		} `json:"descr"`
		TxID []string `json:"txid"`
	}
	if err := c.private(ctx, op, "AddOrder", form, &result); err != nil {
		return nil, err
	}

	resp := &ports.OrderResponse{Description: result.Descr.Order, Timestamp: time.Now().UTC()}
	if len(result.TxID) > 0 {
		resp.TxID = result.TxID[0]
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"pair": pair, "txID": resp.TxID, "order": resp.Description})
	return resp, nil
}

// Ping checks connectivity via the public Time endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.public(ctx, "Ping", "Time", nil, nil)
}
