package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types on the agent socket.
const (
	MsgDecideBid  = "decide_bid"
	MsgDecidePlay = "decide_play"
	MsgDecision   = "decision"
	MsgError      = "error"
	MsgWelcome    = "welcome"
)

var (
	pongWait             = 60 * time.Second
	writeWait            = 10 * time.Second
	pingInterval         = (pongWait * 9) / 10
	maxMessageSize int64 = 64 << 10
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"request_id,omitempty"`
	Participant string          `json:"participant,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Agent is one connected remote player.
type Agent struct {
	participant string
	conn        *websocket.Conn
	send        chan []byte
	pending     *Pending
	logger      *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewAgent wraps an upgraded connection. Call Start to begin pumping.
func NewAgent(participant string, conn *websocket.Conn, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		participant: participant,
		conn:        conn,
		send:        make(chan []byte, 16),
		pending:     NewPending(),
		logger:      logger.With(zap.String("player_id", participant)),
		done:        make(chan struct{}),
	}
}

// Participant returns the participant id the agent plays for.
func (a *Agent) Participant() string {
	return a.participant
}

// Start launches the read and write pumps.
func (a *Agent) Start() {
	go a.writePump()
	go a.readPump()
}

// Done is closed once the connection is gone.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Close drops the connection and fails outstanding requests.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		a.conn.Close()
		if n := a.pending.FailAll(ErrAgentDisconnected); n > 0 {
			a.logger.Warn("agent closed with requests outstanding", zap.Int("requests", n))
		}
	})
}

// Send queues an envelope without waiting for a reply.
func (a *Agent) Send(ctx context.Context, env Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	select {
	case a.send <- msg:
		return nil
	case <-a.done:
		return ErrAgentDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request sends payload under a fresh request id and waits for the
// correlated decision.
func (a *Agent) Request(ctx context.Context, msgType string, payload any, timeout time.Duration) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	id, _ := a.pending.Register()
	env := Envelope{Type: msgType, RequestID: id, Participant: a.participant, Data: data}
	if err := a.Send(ctx, env); err != nil {
		a.pending.Cancel(id)
		return nil, err
	}
	return a.pending.Await(ctx, id, timeout)
}

func (a *Agent) readPump() {
	defer a.Close()

	a.conn.SetReadLimit(maxMessageSize)
	_ = a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("agent read failed", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			a.logger.Debug("dropping undecodable message", zap.Error(err))
			continue
		}
		switch env.Type {
		case MsgDecision:
			if !a.pending.Resolve(env.RequestID, env.Data) {
				a.logger.Debug("late or unknown decision", zap.String("request_id", env.RequestID))
			}
		case MsgError:
			a.pending.Fail(env.RequestID, fmt.Errorf("agent error: %s", env.Error))
		default:
			a.logger.Debug("ignoring message", zap.String("type", env.Type))
		}
	}
}

func (a *Agent) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		a.Close()
	}()

	for {
		select {
		case message := <-a.send:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				a.logger.Warn("agent write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-a.done:
			return
		}
	}
}
