package server

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/events"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// observer is one /events subscriber. An empty tournament receives every
// event.
type observer struct {
	conn       *websocket.Conn
	send       chan []byte
	tournament string
}

type frame struct {
	tournament string
	payload    []byte
}

// Hub fans the event stream out to observers. Each observer has its own
// bounded queue; an observer whose queue is full is dropped.
type Hub struct {
	observers  map[*observer]bool
	broadcast  chan frame
	register   chan *observer
	unregister chan *observer
	count      atomic.Int64
	running    atomic.Bool
	done       chan struct{}
	queueSize  int
	logger     *zap.Logger
}

// NewHub creates a hub. queueSize bounds every observer queue.
func NewHub(queueSize int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		observers:  make(map[*observer]bool),
		broadcast:  make(chan frame, queueSize),
		register:   make(chan *observer),
		unregister: make(chan *observer),
		done:       make(chan struct{}),
		queueSize:  queueSize,
		logger:     logger,
	}
}

// Run owns the observer set until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
		for o := range h.observers {
			close(o.send)
		}
	}()

	for {
		h.count.Store(int64(len(h.observers)))
		select {
		case <-ctx.Done():
			return

		case o := <-h.register:
			h.observers[o] = true
			h.logger.Debug("observer registered", zap.String("tournament_id", o.tournament))

		case o := <-h.unregister:
			if _, ok := h.observers[o]; ok {
				delete(h.observers, o)
				close(o.send)
				h.logger.Debug("observer unregistered", zap.String("tournament_id", o.tournament))
			}

		case f := <-h.broadcast:
			for o := range h.observers {
				if o.tournament != "" && o.tournament != f.tournament {
					continue
				}
				select {
				case o.send <- f.payload:
				default:
					close(o.send)
					delete(h.observers, o)
					h.logger.Warn("dropping slow observer", zap.String("tournament_id", o.tournament))
				}
			}
		}
	}
}

// Publish implements events.Publisher. It never blocks on observers; while
// the hub is not running events are discarded.
func (h *Hub) Publish(e events.Event) {
	if !h.running.Load() {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- frame{tournament: e.TournamentID, payload: payload}:
	case <-h.done:
	}
}

// Observers returns the number of connected observers.
func (h *Hub) Observers() int {
	return int(h.count.Load())
}

func (h *Hub) attach(conn *websocket.Conn, tournament string) {
	o := &observer{conn: conn, send: make(chan []byte, h.queueSize), tournament: tournament}
	select {
	case h.register <- o:
	case <-h.done:
		conn.Close()
		return
	}
	go o.writePump()
	go o.readPump(h)
}

// readPump only watches for the peer going away.
func (o *observer) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- o:
		case <-h.done:
		}
		o.conn.Close()
	}()

	_ = o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (o *observer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case message, ok := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = o.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
