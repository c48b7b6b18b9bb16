package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/protocol"
)

// Commands are small; a message above this, across all of its fragments,
// is a misbehaving client.
const maxMessageSize = 64 * 1024

var (
	errMessageTooLarge = errors.New("message too large")
	errBadContinuation = errors.New("unexpected continuation frame")
)

// ClientAdapter binds one websocket connection to the hub. Outbound frames go
// through a bounded queue drained by writeLoop; a full queue drops frames.
type ClientAdapter struct {
	id      string
	conn    net.Conn
	hub     *hub.Hub
	limiter *CommandLimiter
	logger  *zap.Logger

	mu     sync.Mutex
	queue  chan []byte
	closed bool

	writeWait    time.Duration
	idleTimeout  time.Duration
	pingInterval time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, limiter *CommandLimiter, logger *zap.Logger, queueSize int) *ClientAdapter {
	if queueSize <= 0 {
		queueSize = 256
	}
	id := uuid.NewString()
	return &ClientAdapter{
		id:           id,
		conn:         conn,
		hub:          h,
		limiter:      limiter,
		logger:       logger.With(zap.String("client", id)),
		queue:        make(chan []byte, queueSize),
		writeWait:    5 * time.Second,
		idleTimeout:  60 * time.Second,
		pingInterval: 50 * time.Second,
	}
}

// Start registers the client with the hub and launches its loops.
func (c *ClientAdapter) Start() {
	c.hub.Register(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close stops the write loop, which in turn closes the connection.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

func (c *ClientAdapter) SendBytes(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- b:
	default:
	}
}

func (c *ClientAdapter) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.limiter.Forget(c.id)
		c.conn.Close()
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		op, payload, err := c.readMessage()
		if err != nil {
			if errors.Is(err, errMessageTooLarge) || errors.Is(err, errBadContinuation) {
				c.logger.Warn("Dropping client", zap.Error(err))
			}
			return
		}

		switch op {
		case ws.OpClose:
			return
		case ws.OpText:
			c.handleCommand(payload)
		}
	}
}

// readMessage reads frames until a data message is complete, joining
// continuation fragments. Pings and pongs in between are skipped.
func (c *ClientAdapter) readMessage() (ws.OpCode, []byte, error) {
	var (
		op      ws.OpCode
		message []byte
		started bool
	)
	for {
		header, payload, err := c.readFrame(maxMessageSize - len(message))
		if err != nil {
			return header.OpCode, nil, err
		}

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return ws.OpClose, nil, nil
			}
			continue
		}

		switch {
		case header.OpCode == ws.OpContinuation && !started:
			return header.OpCode, nil, errBadContinuation
		case header.OpCode != ws.OpContinuation && started:
			return header.OpCode, nil, errBadContinuation
		case !started:
			op, started = header.OpCode, true
		}

		message = append(message, payload...)
		if header.Fin {
			return op, message, nil
		}
	}
}

// readFrame reads and unmasks one frame whose payload may not exceed limit.
func (c *ClientAdapter) readFrame(limit int) (ws.Header, []byte, error) {
	header, err := ws.ReadHeader(c.conn)
	if err != nil {
		return header, nil, err
	}
	if header.Length > int64(limit) {
		return header, nil, errMessageTooLarge
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return header, nil, err
	}
	if header.Masked {
		ws.Cipher(payload, header.Mask, 0)
	}
	return header, payload, nil
}

// handleCommand drops malformed and rate-limited commands without a reply.
// Each alias in a command costs one token.
func (c *ClientAdapter) handleCommand(payload []byte) {
	cmd, err := protocol.ParseCommand(payload)
	if err != nil {
		c.logger.Debug("Ignoring malformed command", zap.Error(err))
		return
	}
	if !c.limiter.AllowN(c.id, len(cmd.Aliases)) {
		c.logger.Debug("Command rate exceeded", zap.String("action", cmd.Action), zap.Int("aliases", len(cmd.Aliases)))
		return
	}
	c.hub.HandleCommand(c, cmd)
}

func (c *ClientAdapter) writeLoop() {
	pings := time.NewTicker(c.pingInterval)
	defer func() {
		pings.Stop()
		c.conn.Close()
	}()

	for {
		var op ws.OpCode
		var frame []byte

		select {
		case msg, ok := <-c.queue:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
				c.conn.Write(ws.CompiledClose)
				return
			}
			op, frame = ws.OpText, msg
		case <-pings.C:
			op = ws.OpPing
		}

		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := wsutil.WriteServerMessage(c.conn, op, frame); err != nil {
			c.logger.Debug("Write failed", zap.Error(err))
			return
		}
	}
}
