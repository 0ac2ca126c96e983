package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/ratelimit"
)

const (
	BybitBaseURL    = "https://api.bybit.com"
	BybitTestnetURL = "https://api-testnet.bybit.com"
)

// BybitConnector signs requests itself instead of going through the proxy.
type BybitConnector struct {
	baseURL    string
	testnetURL string
	client     *http.Client
	limiter    ratelimit.Limiter
}

func NewBybitConnector(baseURL, testnetURL string, requestsPerSecond int) *BybitConnector {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if testnetURL == "" {
		testnetURL = BybitTestnetURL
	}
	return &BybitConnector{
		baseURL:    baseURL,
		testnetURL: testnetURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    newLimiter(requestsPerSecond),
	}
}

func (c *BybitConnector) Connect(bot *domain.Bot, creds *domain.Credentials) (domain.ExchangeProxy, error) {
	if !strings.EqualFold(bot.Exchange, "bybit") {
		return nil, fmt.Errorf("direct mode supports bybit only, bot uses %q", bot.Exchange)
	}
	baseURL := c.baseURL
	if bot.IsTestnet {
		baseURL = c.testnetURL
	}
	return &BybitAdapter{
		apiKey:    creds.APIKey,
		apiSecret: creds.APISecret,
		baseURL:   baseURL,
		client:    c.client,
		limiter:   c.limiter,
	}, nil
}

type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
	limiter   ratelimit.Limiter
}

// --- REST API ---

func (b *BybitAdapter) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, query url.Values, payload map[string]any) ([]byte, error) {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	}
	if len(query) > 0 {
		paramsStr = query.Encode()
		path += "?" + paramsStr
	}

	b.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp, recvWindow))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(respBody))
	}

	var envelope struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, err
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	return respBody, nil
}

func (b *BybitAdapter) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	sym, category := BybitSymbol(symbol)
	resp, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers",
		url.Values{"category": {category}, "symbol": {sym}}, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if len(result.Result.List) == 0 {
		return nil, fmt.Errorf("symbol %s not found", sym)
	}

	last, err := strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last price: %w", err)
	}
	return &domain.Ticker{Symbol: symbol, Last: last}, nil
}

// GetBalance sums the USDT wallet balance over every account type that
// answers. Types the account does not have (e.g. SPOT on a unified account)
// are skipped; it fails only if none answers.
func (b *BybitAdapter) GetBalance(ctx context.Context, accountTypes []string) (*domain.Balance, error) {
	var (
		total   float64
		ok      bool
		lastErr error
	)
	for _, accountType := range accountTypes {
		resp, err := b.sendRequest(ctx, http.MethodGet, "/v5/account/wallet-balance",
			url.Values{"accountType": {accountType}, "coin": {"USDT"}}, nil)
		if err != nil {
			lastErr = err
			continue
		}

		var result struct {
			Result struct {
				List []struct {
					Coin []struct {
						Coin          string `json:"coin"`
						WalletBalance string `json:"walletBalance"`
					} `json:"coin"`
				} `json:"list"`
			} `json:"result"`
		}
		if err := json.Unmarshal(resp, &result); err != nil {
			lastErr = err
			continue
		}
		ok = true
		for _, acct := range result.Result.List {
			for _, c := range acct.Coin {
				if c.Coin != "USDT" {
					continue
				}
				v, _ := strconv.ParseFloat(c.WalletBalance, 64)
				total += v
			}
		}
	}
	if !ok {
		if lastErr == nil {
			lastErr = fmt.Errorf("no account types requested")
		}
		return nil, lastErr
	}
	return &domain.Balance{USDT: total}, nil
}

func (b *BybitAdapter) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	sym, category := BybitSymbol(symbol)
	resp, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/kline", url.Values{
		"category": {category},
		"symbol":   {sym},
		"interval": {BybitInterval(timeframe)},
		"limit":    {strconv.Itoa(limit)},
	}, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.Result.List))
	for _, raw := range result.Result.List {
		// Format: [startTime, open, high, low, close, volume, turnover]
		if len(raw) < 6 {
			continue
		}

		ts, _ := strconv.ParseInt(raw[0], 10, 64)
		open, _ := strconv.ParseFloat(raw[1], 64)
		high, _ := strconv.ParseFloat(raw[2], 64)
		low, _ := strconv.ParseFloat(raw[3], 64)
		closePrice, _ := strconv.ParseFloat(raw[4], 64)
		volume, _ := strconv.ParseFloat(raw[5], 64)

		candles = append(candles, domain.Candle{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	// Bybit returns newest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func (b *BybitAdapter) CreateOrder(ctx context.Context, order *domain.OrderRequest) (*domain.PlacedOrder, error) {
	sym, category := BybitSymbol(order.Symbol)

	side := "Buy"
	if order.Side == domain.OrderSell {
		side = "Sell"
	}
	orderType := "Limit"
	if order.Type == domain.OrderMarket {
		orderType = "Market"
	}
	tif := "GTC"
	if order.PostOnly {
		tif = "PostOnly"
	}

	payload := map[string]any{
		"category":    category,
		"symbol":      sym,
		"side":        side,
		"orderType":   orderType,
		"qty":         strconv.FormatFloat(order.Amount, 'f', -1, 64),
		"timeInForce": tif,
	}
	if orderType == "Limit" {
		payload["price"] = strconv.FormatFloat(order.Price, 'f', -1, 64)
	}
	if order.ReduceOnly {
		payload["reduceOnly"] = true
	}

	resp, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", nil, payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if result.Result.OrderID == "" {
		return nil, fmt.Errorf("bybit order create returned no order id")
	}
	return &domain.PlacedOrder{ID: result.Result.OrderID}, nil
}

func (b *BybitAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	sym, category := BybitSymbol(symbol)
	_, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, map[string]any{
		"category": category,
		"symbol":   sym,
		"orderId":  orderID,
	})
	return err
}

// BybitSymbol converts a unified symbol into Bybit's form and category:
// "XMR/USDT:USDT" is a linear perpetual, "BTC/USDT" is spot, a bare
// "BTCUSDT" is assumed linear.
func BybitSymbol(unified string) (symbol, category string) {
	if !strings.Contains(unified, "/") {
		return strings.ToUpper(unified), "linear"
	}
	category = "spot"
	if idx := strings.Index(unified, ":"); idx != -1 {
		unified = unified[:idx]
		category = "linear"
	}
	return strings.ToUpper(strings.ReplaceAll(unified, "/", "")), category
}

var bybitIntervals = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

func BybitInterval(timeframe string) string {
	if v, ok := bybitIntervals[timeframe]; ok {
		return v
	}
	return timeframe
}
