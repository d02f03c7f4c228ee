// Package events carries the arena's observable event stream.
package events

import (
	"sync"
	"time"

	"github.com/magefree/landlord-arena/internal/cards"
)

// EventType indicates the category of an arena event.
type EventType string

const (
	// Round events
	EventGameStart  EventType = "game-start"
	EventDeal       EventType = "deal"
	EventBid        EventType = "bid"
	EventLandlord   EventType = "landlord"
	EventPlay       EventType = "play"
	EventPass       EventType = "pass"
	EventTrickReset EventType = "trick-reset"
	EventFinish     EventType = "finish"
	EventScore      EventType = "score"

	// Tournament events
	EventTournamentStart EventType = "tournament-start"
	EventRoundStart      EventType = "round-start"
	EventSeriesStart     EventType = "series-start"
	EventSeriesEnd       EventType = "series-end"
	EventEliminated      EventType = "eliminated"
	EventRoundEnd        EventType = "round-end"
	EventTournamentEnd   EventType = "tournament-end"
)

// Event is a single entry of the stream. Round and game coordinates are zero
// for events published outside a tournament.
type Event struct {
	Type         EventType         `json:"type"`
	Seq          uint64            `json:"seq"`
	Time         time.Time         `json:"time"`
	TournamentID string            `json:"tournament_id,omitempty"`
	Round        int               `json:"round,omitempty"`
	Group        int               `json:"group,omitempty"`
	Game         int               `json:"game,omitempty"`
	GameID       string            `json:"game_id,omitempty"`
	Seat         int               `json:"seat"`
	PlayerID     string            `json:"player_id,omitempty"`
	Cards        []cards.Card      `json:"cards,omitempty"`
	Combo        string            `json:"combo,omitempty"`
	Amount       int               `json:"amount,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Description  string            `json:"description,omitempty"`
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, seat int, playerID string) Event {
	return Event{
		Type:     eventType,
		Seat:     seat,
		PlayerID: playerID,
		Metadata: make(map[string]string),
	}
}

// WithCards returns a copy of the event carrying a copy of cs.
func (e Event) WithCards(cs []cards.Card) Event {
	e.Cards = append([]cards.Card(nil), cs...)
	return e
}

// WithAmount returns a copy of the event with Amount set.
func (e Event) WithAmount(amount int) Event {
	e.Amount = amount
	return e
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type subscription struct {
	handle    int
	eventType EventType // empty matches every type
	callback  Listener
}

// Publisher is the narrow interface emitters depend on.
type Publisher interface {
	Publish(Event)
}

// EventBus is a synchronous publish/subscribe implementation with type
// filtering. Deliveries are serialized across publishers and reach
// listeners in subscription order. Listeners must not publish.
type EventBus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	nextHandle    int

	deliverMu sync.Mutex
	seq       uint64
	now       func() time.Time
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{now: time.Now}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	return bus.subscribe("", listener)
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, listener Listener) int {
	return bus.subscribe(eventType, listener)
}

func (bus *EventBus) subscribe(eventType EventType, listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.subscriptions = append(bus.subscriptions, subscription{handle: handle, eventType: eventType, callback: listener})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle. It is
// safe to call from inside a listener.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, s := range bus.subscriptions {
		if s.handle == handle {
			bus.subscriptions = append(bus.subscriptions[:i:i], bus.subscriptions[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (bus *EventBus) Len() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.subscriptions)
}

// Publish stamps the event with the next sequence number and delivers it to
// all matching listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.deliverMu.Lock()
	defer bus.deliverMu.Unlock()

	bus.seq++
	event.Seq = bus.seq
	if event.Time.IsZero() {
		event.Time = bus.now()
	}

	bus.mu.RLock()
	targets := make([]subscription, len(bus.subscriptions))
	copy(targets, bus.subscriptions)
	bus.mu.RUnlock()

	for _, s := range targets {
		if s.eventType == "" || s.eventType == event.Type {
			s.callback(event)
		}
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
