package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/config"
	"github.com/magefree/landlord-arena/internal/events"
	"github.com/magefree/landlord-arena/internal/remote"
	"github.com/magefree/landlord-arena/internal/round"
	"github.com/magefree/landlord-arena/internal/tournament"
)

type harness struct {
	srv     *Server
	agents  *remote.Directory
	manager *tournament.Manager
	addr    string
	cancel  context.CancelFunc
	errc    chan error
}

func startServer(t *testing.T) *harness {
	t.Helper()
	cfg := config.ServerConfig{
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   2 * time.Second,
		EventBuffer:       16,
	}
	agents := remote.NewDirectory(zap.NewNop())
	manager := tournament.NewManager(zap.NewNop(), nil)
	srv := New(cfg, agents, manager, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		srv:     srv,
		agents:  agents,
		manager: manager,
		addr:    lis.Addr().String(),
		cancel:  cancel,
		errc:    make(chan error, 1),
	}
	go func() { h.errc <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(5 * time.Second):
		}
	})
	return h
}

func (h *harness) url(path string) string {
	return "http://" + h.addr + path
}

func (h *harness) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+h.addr+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func passBot() round.Bot {
	return round.Funcs{}
}

func TestHealth(t *testing.T) {
	h := startServer(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, h.url("/healthz"), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["observers"])
	assert.EqualValues(t, 0, body["active_tournaments"])
	assert.Empty(t, body["agents"])
}

func TestAgentConnection(t *testing.T) {
	h := startServer(t)

	t.Run("participant required", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, h.url("/agents"), nil))
	})

	t.Run("welcome and bind", func(t *testing.T) {
		conn := h.dial(t, "/agents?participant=north")

		var env remote.Envelope
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, remote.MsgWelcome, env.Type)
		assert.Equal(t, "north", env.Participant)

		require.Eventually(t, func() bool {
			_, ok := h.agents.Get("north")
			return ok
		}, 2*time.Second, 10*time.Millisecond)

		var body map[string]any
		require.Equal(t, http.StatusOK, getJSON(t, h.url("/healthz"), &body))
		assert.Equal(t, []any{"north"}, body["agents"])

		conn.Close()
		require.Eventually(t, func() bool {
			_, ok := h.agents.Get("north")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestEventStream(t *testing.T) {
	h := startServer(t)

	all := h.dial(t, "/events")
	filtered := h.dial(t, "/events?tournament=t1")
	require.Eventually(t, func() bool { return h.srv.Hub().Observers() == 2 }, 2*time.Second, 10*time.Millisecond)

	other := events.NewEvent(events.EventRoundStart, 0, "")
	other.TournamentID = "t2"
	mine := events.NewEvent(events.EventRoundStart, 0, "")
	mine.TournamentID = "t1"
	mine.Round = 1
	h.srv.Hub().Publish(other)
	h.srv.Hub().Publish(mine)

	read := func(conn *websocket.Conn) events.Event {
		t.Helper()
		var e events.Event
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&e))
		return e
	}

	assert.Equal(t, "t2", read(all).TournamentID)
	assert.Equal(t, "t1", read(all).TournamentID)

	got := read(filtered)
	assert.Equal(t, "t1", got.TournamentID)
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, events.EventRoundStart, got.Type)

	filtered.Close()
	require.Eventually(t, func() bool { return h.srv.Hub().Observers() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTournamentRoutes(t *testing.T) {
	h := startServer(t)

	var list []tournament.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, h.url("/tournaments"), &list))
	assert.Empty(t, list)

	_, err := h.manager.Create([]tournament.Participant{
		{ID: "a", Bot: passBot()},
		{ID: "b", Bot: passBot()},
		{ID: "c", Bot: passBot()},
	}, tournament.Options{ID: "cup", GamesPerRound: 1, Seed: 3})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, getJSON(t, h.url("/tournaments"), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "cup", list[0].ID)

	var snap tournament.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, h.url("/tournaments/cup"), &snap))
	assert.Equal(t, "WAITING", snap.StateName)
	assert.Len(t, snap.Players, 3)

	assert.Equal(t, http.StatusNotFound, getJSON(t, h.url("/tournaments/missing"), nil))
}

func TestServeShutsDown(t *testing.T) {
	h := startServer(t)
	obs := h.dial(t, "/events")
	h.dial(t, "/agents?participant=p1")
	require.Eventually(t, func() bool {
		_, ok := h.agents.Get("p1")
		return ok && h.srv.Hub().Observers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.cancel()
	select {
	case err := <-h.errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	h.errc <- nil // satisfy cleanup

	assert.Empty(t, h.agents.Connected())
	require.NoError(t, obs.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := obs.ReadMessage()
	assert.Error(t, err, "observers are disconnected on shutdown")
}

func TestPublishWithoutServe(t *testing.T) {
	srv := New(config.ServerConfig{EventBuffer: 4}, nil, nil, nil)
	bus := events.NewEventBus()
	bus.Subscribe(srv.Hub().Publish)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			e := events.NewEvent(events.EventPlay, i%3, "p1")
			e.TournamentID = "t1"
			bus.Publish(e)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing stalled on a hub that is not running")
	}
	assert.Zero(t, srv.Hub().Observers())
}

func TestPublishAfterHubStops(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	require.Eventually(t, hub.running.Load, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.Publish(events.NewEvent(events.EventPass, 0, "p1"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing stalled on a stopped hub")
	}
}
