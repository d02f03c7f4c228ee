// Package replay archives the event log of a tournament, one entry per game,
// and lets callers step through it.
package replay

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/magefree/landlord-arena/internal/events"
)

// FormatVersion is written into every archive header.
const FormatVersion = 1

// Extension is appended to the tournament id to name an archive.
const Extension = ".replay.gz"

var ErrUnsupportedVersion = errors.New("unsupported replay version")

// GameLog is the ordered event stream of one game.
type GameLog struct {
	GameID string
	Round  int
	Group  int
	Game   int
	Events []events.Event
}

// Replay holds every game of a tournament in the order the games started,
// plus the tournament-level events that belong to no game.
type Replay struct {
	TournamentID string
	Series       []events.Event
	Games        []*GameLog
	CurrentIndex int
	mu           sync.RWMutex
}

// New creates an empty replay.
func New(tournamentID string) *Replay {
	return &Replay{TournamentID: tournamentID}
}

// Start rewinds to the first game.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CurrentIndex = 0
}

// Next returns the game at the cursor and advances it, or nil at the end.
func (r *Replay) Next() *GameLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.Games) {
		g := r.Games[r.CurrentIndex]
		r.CurrentIndex++
		return g
	}
	return nil
}

// Previous steps the cursor back and returns that game, or nil at the start.
func (r *Replay) Previous() *GameLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.Games[r.CurrentIndex]
	}
	return nil
}

// Skip moves the cursor by count games, clamped to the archive, and returns
// the game there.
func (r *Replay) Skip(count int) *GameLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.CurrentIndex + count
	if idx >= len(r.Games) {
		idx = len(r.Games) - 1
	}
	if idx < 0 {
		idx = 0
	}
	r.CurrentIndex = idx
	if idx < len(r.Games) {
		return r.Games[idx]
	}
	return nil
}

// Size returns the number of games.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Games)
}

// GameAt returns the game at index, or nil.
func (r *Replay) GameAt(index int) *GameLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.Games) {
		return r.Games[index]
	}
	return nil
}

// Find looks a game up by id.
func (r *Replay) Find(gameID string) (*GameLog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.Games {
		if g.GameID == gameID {
			return g, true
		}
	}
	return nil, false
}

type header struct {
	TournamentID string
	Timestamp    time.Time
	Version      int
	SeriesEvents int
	GameCount    int
}

// Path returns the archive location for a tournament inside directory.
func Path(directory, tournamentID string) string {
	return filepath.Join(directory, tournamentID+Extension)
}

// SaveToFile writes the replay as a gzip-compressed gob stream and returns the
// file path.
func (r *Replay) SaveToFile(directory string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.TournamentID == "" {
		return "", errors.New("replay has no tournament id")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("create replay directory: %w", err)
	}

	path := Path(directory, r.TournamentID)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create replay file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)

	h := header{
		TournamentID: r.TournamentID,
		Timestamp:    time.Now().UTC(),
		Version:      FormatVersion,
		SeriesEvents: len(r.Series),
		GameCount:    len(r.Games),
	}
	if err := enc.Encode(&h); err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	for i := range r.Series {
		if err := enc.Encode(&r.Series[i]); err != nil {
			return "", fmt.Errorf("encode series event %d: %w", i, err)
		}
	}
	for i, g := range r.Games {
		if err := enc.Encode(g); err != nil {
			return "", fmt.Errorf("encode game %d: %w", i, err)
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("flush replay: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync replay: %w", err)
	}
	return path, nil
}

// LoadFromFile reads an archive written by SaveToFile.
func LoadFromFile(path string) (*Replay, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	r := New(h.TournamentID)
	r.Series = make([]events.Event, 0, h.SeriesEvents)
	for i := 0; i < h.SeriesEvents; i++ {
		var e events.Event
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode series event %d: %w", i, err)
		}
		r.Series = append(r.Series, e)
	}
	r.Games = make([]*GameLog, 0, h.GameCount)
	for i := 0; i < h.GameCount; i++ {
		var g GameLog
		if err := dec.Decode(&g); err != nil {
			return nil, fmt.Errorf("decode game %d: %w", i, err)
		}
		r.Games = append(r.Games, &g)
	}
	return r, nil
}
