package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultReadTimeout       = 5 * time.Second
	defaultReconnectMaxDelay = 60 * time.Second
	defaultReconnectMaxTries = 300
	reconnectMinDelay        = 2 * time.Second
)

type tickerCommand struct {
	Action string      `json:"a"`
	Value  interface{} `json:"v"`
}

type textMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Ticker is a self-reconnecting client for the binary tick stream. Token
// subscriptions survive reconnects and are replayed on every connect.
type Ticker struct {
	url    string
	dialer *websocket.Dialer

	ReadTimeout       time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectMaxTries int

	mu   sync.Mutex // guards conn writes and subs
	conn *websocket.Conn
	subs map[uint32]Mode

	onTicks       func([]Tick)
	onConnect     func()
	onError       func(error)
	onClose       func(code int, reason string)
	onReconnect   func(attempt int, delay time.Duration)
	onNoReconnect func(attempt int)
}

func NewTicker(rootURL, apiKey, accessToken string) *Ticker {
	q := url.Values{}
	q.Set("api_key", apiKey)
	q.Set("access_token", accessToken)

	return &Ticker{
		url:               rootURL + "?" + q.Encode(),
		dialer:            websocket.DefaultDialer,
		ReadTimeout:       defaultReadTimeout,
		ReconnectMaxDelay: defaultReconnectMaxDelay,
		ReconnectMaxTries: defaultReconnectMaxTries,
		subs:              make(map[uint32]Mode),
	}
}

func (t *Ticker) OnTicks(f func([]Tick))                               { t.onTicks = f }
func (t *Ticker) OnConnect(f func())                                   { t.onConnect = f }
func (t *Ticker) OnError(f func(error))                                { t.onError = f }
func (t *Ticker) OnClose(f func(code int, reason string))              { t.onClose = f }
func (t *Ticker) OnReconnect(f func(attempt int, delay time.Duration)) { t.onReconnect = f }
func (t *Ticker) OnNoReconnect(f func(attempt int))                    { t.onNoReconnect = f }

// Subscribe records the tokens (default mode quote) and, when connected,
// sends the subscription immediately.
func (t *Ticker) Subscribe(tokens []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tok := range tokens {
		if _, ok := t.subs[tok]; !ok {
			t.subs[tok] = ModeQuote
		}
	}
	return t.sendLocked(tickerCommand{Action: "subscribe", Value: tokens})
}

// Unsubscribe forgets the tokens and tells the server when connected.
func (t *Ticker) Unsubscribe(tokens []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tok := range tokens {
		delete(t.subs, tok)
	}
	return t.sendLocked(tickerCommand{Action: "unsubscribe", Value: tokens})
}

// SetMode changes the verbosity for already subscribed tokens.
func (t *Ticker) SetMode(mode Mode, tokens []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tok := range tokens {
		if _, ok := t.subs[tok]; ok {
			t.subs[tok] = mode
		}
	}
	return t.sendLocked(tickerCommand{Action: "mode", Value: []interface{}{mode, tokens}})
}

// Serve connects and reads until ctx is cancelled, reconnecting with
// exponential backoff whenever the connection drops.
func (t *Ticker) Serve(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := t.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && t.onError != nil {
			t.onError(err)
		}

		if connected {
			attempt = 0
		}
		attempt++
		if t.ReconnectMaxTries > 0 && attempt > t.ReconnectMaxTries {
			if t.onNoReconnect != nil {
				t.onNoReconnect(attempt)
			}
			return ErrMaxRetries
		}

		delay := backoff(attempt, t.ReconnectMaxDelay)
		if t.onReconnect != nil {
			t.onReconnect(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndRead reports whether the handshake and resubscribe succeeded, so
// Serve can reset its attempt counter.
func (t *Ticker) connectAndRead(ctx context.Context) (bool, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial ticker: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	err = t.resubscribeLocked()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()
	}()

	if err != nil {
		return false, err
	}
	if t.onConnect != nil {
		t.onConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok && t.onClose != nil {
				t.onClose(ce.Code, ce.Text)
			}
			return true, err
		}

		switch msgType {
		case websocket.BinaryMessage:
			ticks, perr := ParseBinary(data)
			if perr != nil && t.onError != nil {
				t.onError(perr)
			}
			if len(ticks) > 0 && t.onTicks != nil {
				t.onTicks(ticks)
			}
		case websocket.TextMessage:
			t.handleText(data)
		}
	}
}

func (t *Ticker) handleText(data []byte) {
	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type == "error" && t.onError != nil {
		var text string
		json.Unmarshal(msg.Data, &text)
		t.onError(fmt.Errorf("kite ticker: %s", text))
	}
}

// resubscribeLocked replays every known token grouped by mode.
func (t *Ticker) resubscribeLocked() error {
	if len(t.subs) == 0 {
		return nil
	}

	byMode := make(map[Mode][]uint32)
	all := make([]uint32, 0, len(t.subs))
	for tok, mode := range t.subs {
		all = append(all, tok)
		byMode[mode] = append(byMode[mode], tok)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	if err := t.sendLocked(tickerCommand{Action: "subscribe", Value: all}); err != nil {
		return err
	}
	for mode, toks := range byMode {
		sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
		if err := t.sendLocked(tickerCommand{Action: "mode", Value: []interface{}{mode, toks}}); err != nil {
			return err
		}
	}
	return nil
}

func (t *Ticker) sendLocked(cmd tickerCommand) error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Action, err)
	}
	return nil
}

func backoff(attempt int, max time.Duration) time.Duration {
	if max <= 0 {
		max = defaultReconnectMaxDelay
	}
	d := reconnectMinDelay
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
