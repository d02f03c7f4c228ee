// Package remote lets bots run in other processes. A remote agent holds a
// websocket to the arena; every decision request is correlated with its
// reply through a request id.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAgentNotConnected is returned when no agent is bound to a participant.
	ErrAgentNotConnected = errors.New("agent not connected")
	// ErrAgentDisconnected is delivered to requests outstanding when a connection drops.
	ErrAgentDisconnected = errors.New("agent disconnected")
	// ErrRequestTimeout is returned by Await when no reply arrives in time.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrUnknownRequest is returned for ids that were never registered or are already settled.
	ErrUnknownRequest = errors.New("unknown request")
	// ErrBadPayload is returned for replies that do not decode into a decision.
	ErrBadPayload = errors.New("bad decision payload")
)

// Reply is the settled value of one request.
type Reply struct {
	Payload json.RawMessage
	Err     error
}

type slot struct {
	ch      chan Reply
	settled bool
}

// Pending is the correlation table of outstanding requests. Each id settles
// at most once; later resolutions are ignored.
type Pending struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewPending returns an empty table.
func NewPending() *Pending {
	return &Pending{slots: make(map[string]*slot)}
}

// Register allocates a request id and the channel its reply arrives on.
func (p *Pending) Register() (string, <-chan Reply) {
	id := uuid.NewString()
	s := &slot{ch: make(chan Reply, 1)}

	p.mu.Lock()
	p.slots[id] = s
	p.mu.Unlock()
	return id, s.ch
}

// Resolve settles id with a payload. It reports false when the id is unknown
// or already settled.
func (p *Pending) Resolve(id string, payload json.RawMessage) bool {
	return p.settle(id, Reply{Payload: payload})
}

// Fail settles id with an error.
func (p *Pending) Fail(id string, err error) bool {
	return p.settle(id, Reply{Err: err})
}

func (p *Pending) settle(id string, r Reply) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[id]
	if !ok || s.settled {
		return false
	}
	s.settled = true
	s.ch <- r
	return true
}

// FailAll settles every outstanding request with err.
func (p *Pending) FailAll(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.slots {
		if !s.settled {
			s.settled = true
			s.ch <- Reply{Err: err}
			n++
		}
	}
	return n
}

// Await blocks until id settles, the context ends or timeout elapses, and
// removes the slot in every case. A non-positive timeout relies on ctx alone.
func (p *Pending) Await(ctx context.Context, id string, timeout time.Duration) (json.RawMessage, error) {
	p.mu.Lock()
	s, ok := p.slots[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	defer p.Cancel(id)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-s.ch:
		return r.Payload, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
	}
}

// Cancel forgets id. Replies arriving afterwards are dropped.
func (p *Pending) Cancel(id string) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// Len returns the number of requests not yet awaited or cancelled.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
