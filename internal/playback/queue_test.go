package playback

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, n int, opts ...QueueOption) (*Queue, chan Command) {
	t.Helper()
	cmds := make(chan Command, 256)
	q := NewQueue(cmds, opts...)
	for i := range n {
		q.Append(testTrack(i))
	}
	return q, cmds
}

func testTrack(i int) music.Track {
	return music.Track{
		ID:         fmt.Sprintf("track%d", i),
		Title:      fmt.Sprintf("Song %d", i),
		Artists:    []string{"Artist"},
		DurationMS: 180000,
	}
}

func drain(cmds chan Command) []Command {
	var out []Command
	for {
		select {
		case c := <-cmds:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestQueueAppendReturnsPosition(t *testing.T) {
	q, _ := newTestQueue(t, 0)

	for i := range 5 {
		if got := q.Append(testTrack(i)); got != i {
			t.Fatalf("Append #%d returned %d", i, got)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
}

func TestQueueAppendCopiesTrack(t *testing.T) {
	q, _ := newTestQueue(t, 0)
	track := testTrack(0)
	q.Append(track)

	track.Artists[0] = "Changed"

	got, _ := q.Track(0)
	if got.Artists[0] != "Artist" {
		t.Fatalf("queue shares artist slice with caller: %q", got.Artists[0])
	}
}

func TestQueueRemoveOutOfRangeIsNoop(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	version := q.Version()

	for _, idx := range []int{-1, 3, 100} {
		q.Remove(idx)
	}

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	if q.Version() != version {
		t.Fatalf("version changed on no-op remove")
	}
	if got := drain(cmds); len(got) != 0 {
		t.Fatalf("unexpected directives %v", got)
	}
}

func TestQueueRemoveCurrentReplaysSamePosition(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	q.Play(1)
	drain(cmds)

	q.Remove(1)

	if q.CurrentIndex() != 1 {
		t.Fatalf("CurrentIndex = %d, want 1", q.CurrentIndex())
	}
	cur, _ := q.Current()
	if cur.ID != "track2" {
		t.Fatalf("current track = %s, want track2", cur.ID)
	}

	got := drain(cmds)
	want := []Command{{Kind: CommandLoad, TrackID: "track2"}, {Kind: CommandPlay}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("directives = %v, want %v", got, want)
	}
}

func TestQueueRemoveCurrentLastStops(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	q.Play(2)
	drain(cmds)

	q.Remove(2)

	if q.CurrentIndex() != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", q.CurrentIndex())
	}
	if q.Status() != StatusStopped {
		t.Fatalf("Status = %s, want stop", q.Status())
	}
	got := drain(cmds)
	if len(got) != 1 || got[0].Kind != CommandStop {
		t.Fatalf("directives = %v, want [stop]", got)
	}
}

func TestQueueRemoveBeforeCurrentKeepsTrack(t *testing.T) {
	q, cmds := newTestQueue(t, 4)
	q.Play(2)
	drain(cmds)

	q.Remove(0)

	if q.CurrentIndex() != 1 {
		t.Fatalf("CurrentIndex = %d, want 1", q.CurrentIndex())
	}
	cur, _ := q.Current()
	if cur.ID != "track2" {
		t.Fatalf("current track = %s, want track2", cur.ID)
	}
	if got := drain(cmds); len(got) != 0 {
		t.Fatalf("unexpected directives %v", got)
	}
}

func TestQueueRemoveLastItemStops(t *testing.T) {
	q, cmds := newTestQueue(t, 1)

	q.Remove(0)

	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
	got := drain(cmds)
	if len(got) != 1 || got[0].Kind != CommandStop {
		t.Fatalf("directives = %v, want [stop]", got)
	}
}

func TestQueueClear(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	q.Play(0)
	drain(cmds)

	q.Clear()

	if q.Len() != 0 || q.CurrentIndex() != -1 {
		t.Fatalf("Len = %d CurrentIndex = %d after clear", q.Len(), q.CurrentIndex())
	}
	got := drain(cmds)
	if len(got) != 1 || got[0].Kind != CommandStop {
		t.Fatalf("directives = %v, want [stop]", got)
	}
}

func TestQueueShiftKeepsCurrentTrack(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		from, to int
	}{
		{"move current forward", 1, 1, 3},
		{"move current back", 3, 3, 0},
		{"move before current to after", 2, 0, 4},
		{"move after current to before", 1, 3, 0},
		{"move after current stays after", 1, 2, 4},
		{"move before current stays before", 3, 0, 2},
		{"onto current from below", 2, 0, 2},
		{"onto current from above", 2, 4, 2},
		{"same position", 2, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, cmds := newTestQueue(t, 5)
			q.Play(tt.current)
			drain(cmds)
			before, _ := q.Current()

			if !q.Shift(tt.from, tt.to) {
				t.Fatalf("Shift(%d, %d) = false", tt.from, tt.to)
			}

			after, ok := q.Current()
			if !ok || after.ID != before.ID {
				t.Fatalf("current track = %s, want %s", after.ID, before.ID)
			}
			moved, _ := q.Track(tt.to)
			if moved.ID != fmt.Sprintf("track%d", tt.from) {
				t.Fatalf("track at %d = %s, want track%d", tt.to, moved.ID, tt.from)
			}
		})
	}
}

func TestQueueShiftOutOfRange(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	if q.Shift(0, 2) || q.Shift(-1, 0) {
		t.Fatal("Shift accepted out of range position")
	}
}

func TestQueuePlayIssuesLoadThenPlay(t *testing.T) {
	q, cmds := newTestQueue(t, 2)

	if !q.Play(1) {
		t.Fatal("Play(1) = false")
	}

	got := drain(cmds)
	want := []Command{{Kind: CommandLoad, TrackID: "track1"}, {Kind: CommandPlay}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("directives = %v, want %v", got, want)
	}
	if q.CurrentIndex() != 1 {
		t.Fatalf("CurrentIndex = %d, want 1", q.CurrentIndex())
	}
}

func TestQueuePlayOutOfRangeIsNoop(t *testing.T) {
	q, cmds := newTestQueue(t, 2)

	if q.Play(2) || q.Play(-1) {
		t.Fatal("Play accepted out of range index")
	}
	if got := drain(cmds); len(got) != 0 {
		t.Fatalf("unexpected directives %v", got)
	}
	if q.CurrentIndex() != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", q.CurrentIndex())
	}
}

func TestQueueNextAtEndStops(t *testing.T) {
	q, cmds := newTestQueue(t, 2)
	q.Play(1)
	drain(cmds)

	q.Next()

	if q.CurrentIndex() != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", q.CurrentIndex())
	}
	got := drain(cmds)
	if len(got) != 1 || got[0].Kind != CommandStop {
		t.Fatalf("directives = %v, want [stop]", got)
	}
}

func TestQueuePreviousAtStartStops(t *testing.T) {
	q, cmds := newTestQueue(t, 2)
	q.Play(0)
	drain(cmds)

	q.Previous()

	if q.CurrentIndex() != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", q.CurrentIndex())
	}
	got := drain(cmds)
	if len(got) != 1 || got[0].Kind != CommandStop {
		t.Fatalf("directives = %v, want [stop]", got)
	}
}

func TestQueueNextAndPrevious(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	q.Play(0)

	q.Next()
	if q.CurrentIndex() != 1 {
		t.Fatalf("after Next CurrentIndex = %d, want 1", q.CurrentIndex())
	}
	q.Previous()
	if q.CurrentIndex() != 0 {
		t.Fatalf("after Previous CurrentIndex = %d, want 0", q.CurrentIndex())
	}
	drain(cmds)
}

func TestQueueElapsedAcrossPause(t *testing.T) {
	clock := newFakeClock()
	q, cmds := newTestQueue(t, 1, WithClock(clock.Now))
	q.Play(0)
	drain(cmds)

	q.fold(Event{Kind: EventPlaying})
	clock.Advance(5 * time.Second)
	if got := q.Elapsed(); got != 5*time.Second {
		t.Fatalf("Elapsed while playing = %v, want 5s", got)
	}

	q.fold(Event{Kind: EventPaused})
	clock.Advance(10 * time.Second)
	if got := q.Elapsed(); got != 5*time.Second {
		t.Fatalf("Elapsed while paused = %v, want 5s", got)
	}
	if q.Status() != StatusPaused {
		t.Fatalf("Status = %s, want pause", q.Status())
	}

	q.fold(Event{Kind: EventPlaying})
	clock.Advance(3 * time.Second)
	if got := q.Elapsed(); got != 8*time.Second {
		t.Fatalf("Elapsed after resume = %v, want 8s", got)
	}

	q.fold(Event{Kind: EventStopped})
	if got := q.Elapsed(); got != 0 {
		t.Fatalf("Elapsed after stop = %v, want 0", got)
	}
}

func TestQueueVolumeClamps(t *testing.T) {
	q, cmds := newTestQueue(t, 0, WithVolume(50))

	tests := []struct {
		name string
		op   func() int
		want int
	}{
		{"set above max", func() int { return q.SetVolume(150) }, 100},
		{"set below min", func() int { return q.SetVolume(-5) }, 0},
		{"set in range", func() int { return q.SetVolume(40) }, 40},
		{"adjust up", func() int { return q.AdjustVolume(15) }, 55},
		{"adjust past max", func() int { return q.AdjustVolume(300) }, 100},
		{"adjust past min", func() int { return q.AdjustVolume(-300) }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
			if q.Volume() != tt.want {
				t.Fatalf("Volume = %d, want %d", q.Volume(), tt.want)
			}
			got := drain(cmds)
			if len(got) != 1 || got[0].Kind != CommandSetVolume || got[0].Volume != tt.want {
				t.Fatalf("directives = %v", got)
			}
		})
	}
}

func TestQueueInsertAfterCurrent(t *testing.T) {
	q, cmds := newTestQueue(t, 3)

	if got := q.InsertAfterCurrent([]music.Track{testTrack(10)}); got != 3 {
		t.Fatalf("insert with nothing current at %d, want 3", got)
	}

	q.Play(0)
	drain(cmds)
	if got := q.InsertAfterCurrent([]music.Track{testTrack(11), testTrack(12)}); got != 1 {
		t.Fatalf("insert after current at %d, want 1", got)
	}

	var ids []string
	for _, tr := range q.Tracks() {
		ids = append(ids, tr.ID)
	}
	want := "[track0 track11 track12 track1 track2 track10]"
	if fmt.Sprint(ids) != want {
		t.Fatalf("order = %v, want %s", ids, want)
	}
}

func TestQueueVersionTracksContentChanges(t *testing.T) {
	q, cmds := newTestQueue(t, 0)
	if q.Version() != 1 {
		t.Fatalf("initial version = %d, want 1", q.Version())
	}
	q.Append(testTrack(0))
	q.Append(testTrack(1))
	q.Shift(0, 1)
	q.Remove(0)
	if q.Version() != 5 {
		t.Fatalf("version = %d, want 5", q.Version())
	}
	q.SetVolume(10)
	if q.Version() != 5 {
		t.Fatalf("volume change bumped version")
	}
	drain(cmds)
}

func TestQueueAdvanceIgnoresStaleFinish(t *testing.T) {
	q, cmds := newTestQueue(t, 3)
	q.Play(0)
	q.Play(2)
	drain(cmds)

	if q.advance("track0") {
		t.Fatal("advance accepted finish of a track that is no longer current")
	}
	if q.CurrentIndex() != 2 {
		t.Fatalf("CurrentIndex = %d, want 2", q.CurrentIndex())
	}
	if got := drain(cmds); len(got) != 0 {
		t.Fatalf("unexpected directives %v", got)
	}
}

func TestQueueTogglePlayback(t *testing.T) {
	q, cmds := newTestQueue(t, 2)
	q.Play(0)
	drain(cmds)

	q.TogglePlayback()
	if got := drain(cmds); len(got) != 1 || got[0].Kind != CommandPlay {
		t.Fatalf("toggle while stopped = %v, want [play]", got)
	}

	q.fold(Event{Kind: EventPlaying})
	q.TogglePlayback()
	if got := drain(cmds); len(got) != 1 || got[0].Kind != CommandPause {
		t.Fatalf("toggle while playing = %v, want [pause]", got)
	}
}

func TestQueueConcurrentAccess(t *testing.T) {
	q, cmds := newTestQueue(t, 10)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-cmds:
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 50 {
				q.Append(testTrack(w*100 + i))
				q.Play(i % 5)
				q.Remove(0)
			}
		}()
		go func() {
			defer wg.Done()
			for range 200 {
				s := q.Snapshot()
				if s.Current >= s.Length {
					t.Errorf("current %d beyond length %d", s.Current, s.Length)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestQueueAppendWithinLimit(t *testing.T) {
	q, _ := newTestQueue(t, 1)

	if pos, err := q.AppendWithin(3, testTrack(1), testTrack(2)); err != nil || pos != 1 {
		t.Fatalf("AppendWithin = %d, %v", pos, err)
	}
	if _, err := q.AppendWithin(3, testTrack(3)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, err := q.InsertAfterCurrentWithin(3, testTrack(3)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	if _, err := q.AppendWithin(0, testTrack(3)); err != nil {
		t.Fatalf("unbounded append failed: %v", err)
	}
}

func TestQueueAppendWithinConcurrent(t *testing.T) {
	q, _ := newTestQueue(t, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.AppendWithin(10, testTrack(i)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 10 || q.Len() != 10 {
		t.Fatalf("accepted %d, Len %d, want 10", accepted, q.Len())
	}
}

func TestQueueCloseReleasesBlockedMutators(t *testing.T) {
	q := NewQueue(make(chan Command))

	returned := make(chan struct{})
	go func() {
		q.SetVolume(30)
		q.SetVolume(40)
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("SetVolume returned without a reader")
	case <-time.After(50 * time.Millisecond):
	}

	q.Close()
	q.Close()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("SetVolume still blocked after Close")
	}
	if q.Volume() != 40 {
		t.Fatalf("Volume = %d, want 40", q.Volume())
	}
}
