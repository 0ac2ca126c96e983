package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/ratelimit"
)

// ProxyClient talks to the exchange proxy, which holds no keys of its own:
// every request carries the bot's API key pair and the proxy signs upstream.
type ProxyClient struct {
	url     string
	token   string
	client  *http.Client
	limiter ratelimit.Limiter
}

func NewProxyClient(url, token string, requestsPerSecond int) *ProxyClient {
	return &ProxyClient{
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: newLimiter(requestsPerSecond),
	}
}

func (p *ProxyClient) Connect(bot *domain.Bot, creds *domain.Credentials) (domain.ExchangeProxy, error) {
	if p.url == "" {
		return nil, fmt.Errorf("exchange proxy url not configured")
	}
	return &proxySession{
		client:    p,
		exchange:  strings.ToLower(bot.Exchange),
		apiKey:    creds.APIKey,
		apiSecret: creds.APISecret,
	}, nil
}

type proxySession struct {
	client    *ProxyClient
	exchange  string
	apiKey    string
	apiSecret string
}

type proxyRequest struct {
	Exchange  string         `json:"exchange"`
	Action    string         `json:"action"`
	APIKey    string         `json:"apiKey"`
	APISecret string         `json:"apiSecret"`
	Params    map[string]any `json:"params,omitempty"`
}

func (s *proxySession) call(ctx context.Context, action string, params map[string]any, out any) error {
	body, err := json.Marshal(proxyRequest{
		Exchange:  s.exchange,
		Action:    action,
		APIKey:    s.apiKey,
		APISecret: s.apiSecret,
		Params:    params,
	})
	if err != nil {
		return err
	}

	s.client.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.client.token)

	resp, err := s.client.client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("proxy %s: status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error != "" {
		return fmt.Errorf("proxy %s: %s", action, envelope.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("proxy %s: decode response: %w", action, err)
	}
	return nil
}

func (s *proxySession) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var result struct {
		Ticker *struct {
			Last  *float64 `json:"last"`
			Close *float64 `json:"close"`
		} `json:"ticker"`
	}
	if err := s.call(ctx, "getTicker", map[string]any{"symbol": symbol}, &result); err != nil {
		return nil, err
	}

	t := &domain.Ticker{Symbol: symbol}
	if result.Ticker != nil {
		switch {
		case result.Ticker.Last != nil && *result.Ticker.Last > 0:
			t.Last = *result.Ticker.Last
		case result.Ticker.Close != nil:
			t.Last = *result.Ticker.Close
		}
	}
	return t, nil
}

func (s *proxySession) GetBalance(ctx context.Context, accountTypes []string) (*domain.Balance, error) {
	var result struct {
		Balance *struct {
			USDT *float64 `json:"USDT"`
		} `json:"balance"`
	}
	if err := s.call(ctx, "getBalance", map[string]any{"accountTypes": accountTypes}, &result); err != nil {
		return nil, err
	}
	if result.Balance == nil || result.Balance.USDT == nil {
		return nil, fmt.Errorf("proxy getBalance: no USDT balance in response")
	}
	return &domain.Balance{USDT: *result.Balance.USDT}, nil
}

func (s *proxySession) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	var result struct {
		OHLCV [][]float64 `json:"ohlcv"`
	}
	params := map[string]any{"symbol": symbol, "timeframe": timeframe, "limit": limit}
	if err := s.call(ctx, "getOHLCV", params, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.OHLCV))
	for _, raw := range result.OHLCV {
		// [timestamp, open, high, low, close, volume]
		if len(raw) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			Time:   int64(raw[0]),
			Open:   raw[1],
			High:   raw[2],
			Low:    raw[3],
			Close:  raw[4],
			Volume: raw[5],
		})
	}
	return candles, nil
}

func (s *proxySession) CreateOrder(ctx context.Context, order *domain.OrderRequest) (*domain.PlacedOrder, error) {
	params := map[string]any{
		"symbol":     order.Symbol,
		"type":       order.Type,
		"side":       order.Side,
		"amount":     order.Amount,
		"price":      order.Price,
		"reduceOnly": order.ReduceOnly,
	}
	if order.PostOnly {
		params["timeInForce"] = "PostOnly"
	}

	var result struct {
		Order *domain.PlacedOrder `json:"order"`
	}
	if err := s.call(ctx, "createOrder", params, &result); err != nil {
		return nil, err
	}
	if result.Order == nil || result.Order.ID == "" {
		return nil, fmt.Errorf("proxy createOrder: response has no order id")
	}
	return result.Order, nil
}

func (s *proxySession) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return s.call(ctx, "cancelOrder", map[string]any{"symbol": symbol, "orderId": orderID}, nil)
}

func newLimiter(requestsPerSecond int) ratelimit.Limiter {
	if requestsPerSecond <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(requestsPerSecond)
}
