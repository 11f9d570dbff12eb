package playback

import (
	"context"
	"sync"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
)

// Recorder stores finished plays.
type Recorder interface {
	Record(ctx context.Context, track music.Track, playedFor time.Duration) error
	Totals(ctx context.Context) (plays int, playtime time.Duration, err error)
}

type MemoryRecorder struct {
	mu       sync.Mutex
	plays    int
	playtime time.Duration
	last     []music.Track
}

const memoryRecorderKeep = 50

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, track music.Track, playedFor time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plays++
	r.playtime += playedFor
	r.last = append(r.last, track.Clone())
	if len(r.last) > memoryRecorderKeep {
		r.last = r.last[len(r.last)-memoryRecorderKeep:]
	}
	return nil
}

func (r *MemoryRecorder) Totals(context.Context) (int, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays, r.playtime, nil
}

// Recent returns the most recently finished tracks, oldest first.
func (r *MemoryRecorder) Recent() []music.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]music.Track(nil), r.last...)
}
