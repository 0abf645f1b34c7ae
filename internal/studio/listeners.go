package studio

import (
	"sync"

	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/types"
)

// listenerBuffer is how many snapshots a slow listener may fall behind
// before updates to it are dropped.
const listenerBuffer = 16

type listeners struct {
	mu     sync.RWMutex
	nextID int
	subs   map[types.CompositionID]map[int]chan Snapshot
}

func newListeners() *listeners {
	return &listeners{subs: make(map[types.CompositionID]map[int]chan Snapshot)}
}

// Subscribe returns a channel that receives a snapshot after every mutation
// of the composition, and a function that ends the subscription and closes
// the channel.
func (s *Service) Subscribe(id types.CompositionID) (<-chan Snapshot, func()) {
	l := s.listeners
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	key := l.nextID
	ch := make(chan Snapshot, listenerBuffer)
	if l.subs[id] == nil {
		l.subs[id] = make(map[int]chan Snapshot)
	}
	l.subs[id][key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[id], key)
			if len(l.subs[id]) == 0 {
				delete(l.subs, id)
			}
			close(ch)
		})
	}
}

// publish hands snap to every listener of its composition without blocking.
func (l *listeners) publish(snap Snapshot) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for key, ch := range l.subs[snap.Composition.ID] {
		select {
		case ch <- snap:
		default:
			logger.For("studio").Warn().
				Str("composition", string(snap.Composition.ID)).
				Int("listener", key).
				Msg("listener is behind, dropping snapshot")
		}
	}
}

// Listeners returns the number of active subscriptions for a composition.
func (s *Service) Listeners(id types.CompositionID) int {
	s.listeners.mu.RLock()
	defer s.listeners.mu.RUnlock()
	return len(s.listeners.subs[id])
}
