package mpd

import (
	"slices"
	"strings"
	"sync"
)

// Subsystem names reported by idle.
const (
	SubsystemDatabase       = "database"
	SubsystemUpdate         = "update"
	SubsystemStoredPlaylist = "stored_playlist"
	SubsystemPlaylist       = "playlist"
	SubsystemPlayer         = "player"
	SubsystemMixer          = "mixer"
	SubsystemOutput         = "output"
	SubsystemOptions        = "options"
	SubsystemPartition      = "partition"
	SubsystemSticker        = "sticker"
	SubsystemSubscription   = "subscription"
	SubsystemMessage        = "message"
)

// Notifier fans subsystem changes out to every subscriber. Each subscriber
// accumulates its own pending set until it drains it.
type Notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[*Subscription]struct{})}
}

func (n *Notifier) Subscribe() *Subscription {
	s := &Subscription{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

func (n *Notifier) Unsubscribe(s *Subscription) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

// Notify never blocks.
func (n *Notifier) Notify(subsystems ...string) {
	if len(subsystems) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		s.add(subsystems)
	}
}

type Subscription struct {
	mu      sync.Mutex
	pending map[string]struct{}
	signal  chan struct{}
}

// C receives a value after new changes were added. A receive does not
// guarantee Drain returns anything.
func (s *Subscription) C() <-chan struct{} {
	return s.signal
}

func (s *Subscription) add(subsystems []string) {
	s.mu.Lock()
	for _, name := range subsystems {
		s.pending[name] = struct{}{}
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Drain returns the pending subsystems sorted and clears them.
func (s *Subscription) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.pending))
	for name := range s.pending {
		out = append(out, name)
	}
	clear(s.pending)
	slices.Sort(out)
	return out
}

func changedLine(subsystems []string) string {
	return "changed: " + strings.Join(subsystems, ", ")
}
