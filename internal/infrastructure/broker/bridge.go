package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 8 * time.Second
	reconnectAttempts  = 5
)

// BridgeClient talks to the terminal bridge: REST for queries and order
// traffic, a websocket stream for live ticks.
type BridgeClient struct {
	baseURL   string
	wsURL     string
	authToken string
	client    *http.Client
	logger    *zap.Logger

	mu            sync.Mutex
	wsConn        *websocket.Conn
	tickCallbacks []func(tick domain.Tick)
	connected     bool
	lastPing      time.Time
}

func NewBridgeClient(baseURL, wsURL, authToken string, logger *zap.Logger) *BridgeClient {
	return &BridgeClient{
		baseURL:   baseURL,
		wsURL:     wsURL,
		authToken: authToken,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// --- REST API ---

func (b *BridgeClient) sendRequest(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = data
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.markDisconnected()
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("bridge error %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (b *BridgeClient) markDisconnected() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

// EnsureConnected pings the bridge, re-establishing the session with capped
// exponential backoff. Once the attempts are exhausted the operation is
// abandoned for this cycle and reported to the caller.
func (b *BridgeClient) EnsureConnected(ctx context.Context) error {
	b.mu.Lock()
	fresh := b.connected && time.Since(b.lastPing) < 5*time.Second
	b.mu.Unlock()
	if fresh {
		return nil
	}

	delay := reconnectBaseDelay
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		err := b.sendRequest(ctx, http.MethodGet, "/ping", nil, nil)
		if err == nil {
			b.mu.Lock()
			b.connected = true
			b.lastPing = time.Now()
			b.mu.Unlock()
			return nil
		}
		lastErr = err
		b.logger.Warn("bridge ping failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
	return fmt.Errorf("bridge unreachable after %d attempts: %w", reconnectAttempts, lastErr)
}

func (b *BridgeClient) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	var tick domain.Tick
	path := "/tick?symbol=" + url.QueryEscape(symbol)
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

func (b *BridgeClient) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	var info domain.SymbolInfo
	path := "/symbol?name=" + url.QueryEscape(symbol)
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (b *BridgeClient) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	var acct domain.AccountInfo
	if err := b.sendRequest(ctx, http.MethodGet, "/account", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (b *BridgeClient) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	path := fmt.Sprintf("/candles?symbol=%s&timeframe=%s&limit=%d",
		url.QueryEscape(symbol), url.QueryEscape(timeframe), limit)
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (b *BridgeClient) GetPositions(ctx context.Context, symbol string) ([]*domain.PositionInfo, error) {
	var positions []*domain.PositionInfo
	path := "/positions?symbol=" + url.QueryEscape(symbol)
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (b *BridgeClient) GetRecentDeals(ctx context.Context, symbol string, since time.Time) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	path := fmt.Sprintf("/deals?symbol=%s&since=%d", url.QueryEscape(symbol), since.Unix())
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (b *BridgeClient) SubmitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	var result domain.OrderResult
	if err := b.sendRequest(ctx, http.MethodPost, "/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *BridgeClient) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	payload := map[string]any{
		"ticket":      ticket,
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	}
	return b.sendRequest(ctx, http.MethodPost, "/modify", payload, nil)
}

func (b *BridgeClient) CalcProfit(ctx context.Context, symbol string, side domain.Side, volume, openPrice, closePrice float64) (float64, error) {
	var out struct {
		Profit float64 `json:"profit"`
	}
	path := fmt.Sprintf("/profit?symbol=%s&side=%s&volume=%s&open=%s&close=%s",
		url.QueryEscape(symbol), url.QueryEscape(string(side)),
		formatFloat(volume), formatFloat(openPrice), formatFloat(closePrice))
	if err := b.sendRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Profit, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// --- Tick stream ---

// OnTick registers a callback for live ticks from the websocket stream.
func (b *BridgeClient) OnTick(callback func(tick domain.Tick)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickCallbacks = append(b.tickCallbacks, callback)
}

// ConnectStream opens the tick websocket and subscribes to the symbols. The
// read loop reconnects itself with the same capped backoff as REST.
func (b *BridgeClient) ConnectStream(symbols []string) error {
	conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.wsConn = conn
	b.mu.Unlock()

	sub := map[string]any{"op": "subscribe", "symbols": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	go b.readLoop(symbols)
	return nil
}

func (b *BridgeClient) readLoop(symbols []string) {
	for {
		b.mu.Lock()
		conn := b.wsConn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		var msg struct {
			Type   string  `json:"type"`
			Symbol string  `json:"symbol"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
			Time   int64   `json:"time"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			b.logger.Warn("tick stream read failed, reconnecting", zap.Error(err))
			conn.Close()
			b.reconnectStream(symbols)
			return
		}

		if msg.Type != "tick" {
			continue
		}
		tick := domain.Tick{
			Symbol: msg.Symbol,
			Bid:    msg.Bid,
			Ask:    msg.Ask,
			Time:   time.UnixMilli(msg.Time),
		}

		b.mu.Lock()
		callbacks := append([]func(domain.Tick){}, b.tickCallbacks...)
		b.mu.Unlock()
		for _, cb := range callbacks {
			cb(tick)
		}
	}
}

func (b *BridgeClient) reconnectStream(symbols []string) {
	delay := reconnectBaseDelay
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		time.Sleep(delay)
		if err := b.ConnectStream(symbols); err == nil {
			b.logger.Info("tick stream reconnected", zap.Int("attempt", attempt))
			return
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
	b.logger.Error("tick stream reconnect abandoned", zap.Int("attempts", reconnectAttempts))
}
