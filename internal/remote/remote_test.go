package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/round"
)

func TestPending(t *testing.T) {
	t.Run("resolves once", func(t *testing.T) {
		p := NewPending()
		id, _ := p.Register()
		assert.Equal(t, 1, p.Len())

		assert.True(t, p.Resolve(id, json.RawMessage(`1`)))
		assert.False(t, p.Resolve(id, json.RawMessage(`2`)))
		assert.False(t, p.Fail(id, assert.AnError))

		got, err := p.Await(context.Background(), id, time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(got))
		assert.Zero(t, p.Len())
	})

	t.Run("unknown id", func(t *testing.T) {
		p := NewPending()
		assert.False(t, p.Resolve("missing", nil))
		_, err := p.Await(context.Background(), "missing", time.Second)
		assert.ErrorIs(t, err, ErrUnknownRequest)
	})

	t.Run("timeout removes the slot", func(t *testing.T) {
		p := NewPending()
		id, _ := p.Register()
		_, err := p.Await(context.Background(), id, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrRequestTimeout)
		assert.Zero(t, p.Len())
		assert.False(t, p.Resolve(id, json.RawMessage(`1`)), "late replies are dropped")
	})

	t.Run("context cancellation", func(t *testing.T) {
		p := NewPending()
		id, _ := p.Register()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Await(ctx, id, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancel", func(t *testing.T) {
		p := NewPending()
		id, _ := p.Register()
		p.Cancel(id)
		assert.Zero(t, p.Len())
		assert.False(t, p.Resolve(id, nil))
	})

	t.Run("fail all", func(t *testing.T) {
		p := NewPending()
		a, _ := p.Register()
		b, ch := p.Register()
		require.True(t, p.Resolve(a, json.RawMessage(`"ok"`)))

		assert.Equal(t, 1, p.FailAll(ErrAgentDisconnected))
		r := <-ch
		assert.ErrorIs(t, r.Err, ErrAgentDisconnected)
		_, err := p.Await(context.Background(), b, time.Second)
		assert.ErrorIs(t, err, ErrAgentDisconnected)
	})

	t.Run("concurrent resolution settles exactly once", func(t *testing.T) {
		p := NewPending()
		id, _ := p.Register()
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if p.Resolve(id, json.RawMessage(`0`)) {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

// agentServer accepts agent connections the way the arena server does.
func agentServer(t *testing.T, dir *Directory) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a := NewAgent(r.URL.Query().Get("participant"), conn, zap.NewNop())
		dir.Bind(a)
		a.Start()
		go func() {
			<-a.Done()
			dir.Unbind(a)
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialAgent connects a fake remote agent that answers with respond.
func dialAgent(t *testing.T, srv *httptest.Server, dir *Directory, participant string, respond func(Envelope) *Envelope) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?participant=" + participant
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if reply := respond(env); reply != nil {
				reply.RequestID = env.RequestID
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
			}
		}
	}()

	require.Eventually(t, func() bool {
		_, ok := dir.Get(participant)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func decision(v any) *Envelope {
	data, _ := json.Marshal(v)
	return &Envelope{Type: MsgDecision, Data: data}
}

func TestRemoteBot(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(zap.NewNop())
	srv := agentServer(t, dir)

	var mu sync.Mutex
	respond := func(env Envelope) *Envelope { return nil }
	dialAgent(t, srv, dir, "p1", func(env Envelope) *Envelope {
		mu.Lock()
		defer mu.Unlock()
		return respond(env)
	})
	setResponder := func(f func(Envelope) *Envelope) {
		mu.Lock()
		respond = f
		mu.Unlock()
	}
	bot := dir.Bot("p1", 500*time.Millisecond)

	t.Run("bid", func(t *testing.T) {
		setResponder(func(env Envelope) *Envelope {
			if env.Type != MsgDecideBid {
				return nil
			}
			var view round.BidView
			if err := json.Unmarshal(env.Data, &view); err != nil {
				return nil
			}
			return decision(round.Call(view.HighestCall + 1))
		})
		d, err := bot.DecideBid(ctx, round.BidView{Mode: round.BidModeCall, MaxCall: 3, HighestCall: 1})
		require.NoError(t, err)
		assert.Equal(t, round.Call(2), d)
	})

	t.Run("bad payload", func(t *testing.T) {
		setResponder(func(Envelope) *Envelope {
			return &Envelope{Type: MsgDecision, Data: json.RawMessage(`"nonsense"`)}
		})
		_, err := bot.DecidePlay(ctx, round.PlayView{})
		assert.ErrorIs(t, err, ErrBadPayload)
	})

	t.Run("agent error", func(t *testing.T) {
		setResponder(func(Envelope) *Envelope {
			return &Envelope{Type: MsgError, Error: "thinking failed"}
		})
		_, err := bot.DecideBid(ctx, round.BidView{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "thinking failed")
	})

	t.Run("timeout", func(t *testing.T) {
		setResponder(func(Envelope) *Envelope { return nil })
		slow := dir.Bot("p1", 30*time.Millisecond)
		_, err := slow.DecideBid(ctx, round.BidView{})
		assert.ErrorIs(t, err, ErrRequestTimeout)
	})

	t.Run("unknown participant", func(t *testing.T) {
		_, err := dir.Bot("ghost", time.Second).DecideBid(ctx, round.BidView{})
		assert.ErrorIs(t, err, ErrAgentNotConnected)
	})
}

func TestRemoteAgentPlaysAGame(t *testing.T) {
	dir := NewDirectory(zap.NewNop())
	srv := agentServer(t, dir)

	dialAgent(t, srv, dir, "remote", func(env Envelope) *Envelope {
		switch env.Type {
		case MsgDecideBid:
			return decision(round.Pass())
		case MsgDecidePlay:
			var view round.PlayView
			if err := json.Unmarshal(env.Data, &view); err != nil {
				return nil
			}
			var options []combo.Combo
			if view.Requirement == nil {
				options = combo.EnumerateAll(view.Hand, view.Rules)
			} else {
				options = combo.EnumerateResponses(view.Hand, view.Requirement, view.Rules)
			}
			c, ok := combo.Smallest(options)
			if !ok {
				return decision(round.PassMove())
			}
			return decision(round.PlayCards(c.Cards))
		}
		return nil
	})

	local := round.Funcs{Play: func(_ context.Context, v round.PlayView) (round.PlayDecision, error) {
		c, ok := combo.Smallest(v.Options())
		if !ok {
			return round.PassMove(), nil
		}
		return round.PlayCards(c.Cards), nil
	}}

	rules := round.DefaultRules()
	rules.DecisionTimeout = 2 * time.Second
	e, err := round.NewEngine(round.Config{
		Seats: [3]round.Seat{
			{PlayerID: "remote", Bot: dir.Bot("remote", 0)},
			{PlayerID: "b", Bot: local},
			{PlayerID: "c", Bot: local},
		},
		Seed:  11,
		Rules: rules,
	}, nil, nil)
	require.NoError(t, err)

	out, err := e.Run(context.Background())
	require.NoError(t, err)
	// Every seat passes its bids, so the fallback landlord is seat 0; the
	// remote agent's plays must all have been accepted.
	assert.Equal(t, 0, out.LandlordSeat)
	for _, p := range out.Plays {
		if p.Seat == 0 {
			assert.False(t, p.Fallback, "remote play replaced: %s", p.Reason)
		}
	}
}

func TestDirectory(t *testing.T) {
	dir := NewDirectory(nil)
	srv := agentServer(t, dir)
	silent := func(Envelope) *Envelope { return nil }

	dialAgent(t, srv, dir, "p1", silent)
	a1, _ := dir.Get("p1")

	dialAgent(t, srv, dir, "p1", silent)
	require.Eventually(t, func() bool {
		a2, ok := dir.Get("p1")
		return ok && a2 != a1
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-a1.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replaced agent was not closed")
	}

	dialAgent(t, srv, dir, "p2", silent)
	assert.Equal(t, []string{"p1", "p2"}, dir.Connected())

	dir.CloseAll()
	assert.Empty(t, dir.Connected())
}

func TestDisconnectFailsOutstandingRequests(t *testing.T) {
	dir := NewDirectory(nil)
	srv := agentServer(t, dir)
	conn := dialAgent(t, srv, dir, "p1", func(Envelope) *Envelope { return nil })

	errc := make(chan error, 1)
	go func() {
		_, err := dir.Bot("p1", 5*time.Second).DecideBid(context.Background(), round.BidView{})
		errc <- err
	}()

	a, _ := dir.Get("p1")
	require.Eventually(t, func() bool { return a.pending.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	conn.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrAgentDisconnected)
	case <-time.After(3 * time.Second):
		t.Fatal("request not failed on disconnect")
	}

	require.Eventually(t, func() bool {
		_, ok := dir.Get("p1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	_, err := dir.Bot("p1", time.Second).DecideBid(context.Background(), round.BidView{})
	assert.ErrorIs(t, err, ErrAgentNotConnected)
}
