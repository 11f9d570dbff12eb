package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
)

const (
	MinVolume = 0
	MaxVolume = 100
)

var ErrQueueFull = errors.New("queue is full")

// Queue owns the play order, the current position and the transport status.
//
// Mutators are serialized by opMu so the directives they emit reach the
// Bridge in the order the state changed. mu guards the fields below and is
// never held while sending on the command channel. Lock order is opMu, mu.
// Methods suffixed Locked expect opMu to be held.
type Queue struct {
	opMu sync.Mutex

	mu      sync.RWMutex
	tracks  []music.Track
	current int
	status  Status
	volume  int
	elapsed time.Duration
	since   time.Time
	version uint32

	commands  chan<- Command
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

type QueueOption func(*Queue)

func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

func WithVolume(level int) QueueOption {
	return func(q *Queue) {
		q.volume = clampVolume(level)
	}
}

func NewQueue(commands chan<- Command, opts ...QueueOption) *Queue {
	q := &Queue{
		current:  -1,
		status:   StatusStopped,
		volume:   MaxVolume,
		version:  1,
		commands: commands,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Snapshot is a consistent view of the queue for status replies.
type Snapshot struct {
	Version  uint32
	Length   int
	Current  int
	Next     int
	Status   Status
	Volume   int
	Elapsed  time.Duration
	Duration time.Duration
	Track    music.Track
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	s := Snapshot{
		Version: q.version,
		Length:  len(q.tracks),
		Current: q.current,
		Next:    -1,
		Status:  q.status,
		Volume:  q.volume,
		Elapsed: q.elapsedLocked(),
	}
	if q.current >= 0 {
		s.Track = q.tracks[q.current].Clone()
		s.Duration = q.tracks[q.current].Duration()
		if q.current+1 < len(q.tracks) {
			s.Next = q.current + 1
		}
	}
	return s
}

func (q *Queue) Append(track music.Track) int {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insertLocked(len(q.tracks), []music.Track{track})
}

// AppendAll appends tracks in order and returns the position of the first.
func (q *Queue) AppendAll(tracks []music.Track) int {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insertLocked(len(q.tracks), tracks)
}

// AppendWithin appends tracks only if the queue then holds at most limit
// entries. A limit of zero or less means unbounded.
func (q *Queue) AppendWithin(limit int, tracks ...music.Track) (int, error) {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.roomLocked(limit, len(tracks)) {
		return -1, ErrQueueFull
	}
	return q.insertLocked(len(q.tracks), tracks), nil
}

// InsertAfterCurrent inserts tracks right after the current position, or at
// the end when nothing is current, and returns the first inserted position.
func (q *Queue) InsertAfterCurrent(tracks []music.Track) int {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insertLocked(q.afterCurrentLocked(), tracks)
}

// InsertAfterCurrentWithin is InsertAfterCurrent bounded like AppendWithin.
func (q *Queue) InsertAfterCurrentWithin(limit int, tracks ...music.Track) (int, error) {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.roomLocked(limit, len(tracks)) {
		return -1, ErrQueueFull
	}
	return q.insertLocked(q.afterCurrentLocked(), tracks), nil
}

func (q *Queue) roomLocked(limit, n int) bool {
	return limit <= 0 || len(q.tracks)+n <= limit
}

func (q *Queue) afterCurrentLocked() int {
	if q.current >= 0 {
		return q.current + 1
	}
	return len(q.tracks)
}

// insertLocked requires mu.
func (q *Queue) insertLocked(at int, tracks []music.Track) int {
	if len(tracks) == 0 {
		return at
	}
	block := make([]music.Track, 0, len(tracks))
	for _, t := range tracks {
		block = append(block, t.Clone())
	}
	rest := append([]music.Track(nil), q.tracks[at:]...)
	q.tracks = append(append(q.tracks[:at], block...), rest...)
	q.version++
	return at
}

// Remove deletes the track at index. Out of range is a no-op.
func (q *Queue) Remove(index int) {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	if index < 0 || index >= len(q.tracks) {
		q.mu.Unlock()
		return
	}

	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	q.version++

	stop, replay := false, -1
	switch {
	case len(q.tracks) == 0:
		stop = true
	case q.current < 0:
	case index == q.current:
		if q.current >= len(q.tracks) {
			stop = true
		} else {
			replay = q.current
		}
	case index < q.current:
		q.current--
	}
	if stop {
		q.resetTransport()
	}
	q.mu.Unlock()

	if stop {
		q.dispatch(Command{Kind: CommandStop})
	} else if replay >= 0 {
		q.playLocked(replay)
	}
}

func (q *Queue) Clear() {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	q.tracks = nil
	q.version++
	q.resetTransport()
	q.mu.Unlock()

	q.dispatch(Command{Kind: CommandStop})
}

// Shift moves the track at from to position to, keeping the current
// position on the same logical track.
func (q *Queue) Shift(from, to int) bool {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tracks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	if from == to {
		return true
	}

	moved := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks[:to], append([]music.Track{moved}, q.tracks[to:]...)...)
	q.version++

	cur := q.current
	switch {
	case cur < 0:
	case cur == from:
		q.current = to
	case from < cur && cur <= to:
		q.current = cur - 1
	case to <= cur && cur < from:
		q.current = cur + 1
	}
	return true
}

// Play loads and starts the track at index. Out of range is a no-op.
func (q *Queue) Play(index int) bool {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	return q.playLocked(index)
}

func (q *Queue) playLocked(index int) bool {
	q.mu.Lock()
	if index < 0 || index >= len(q.tracks) {
		q.mu.Unlock()
		return false
	}
	id := q.tracks[index].ID
	q.elapsed = 0
	q.since = time.Time{}
	q.mu.Unlock()

	q.dispatch(Command{Kind: CommandLoad, TrackID: id})
	q.dispatch(Command{Kind: CommandPlay})

	q.mu.Lock()
	q.current = index
	q.mu.Unlock()
	return true
}

// Resume starts the current track, or the first one when nothing is current.
func (q *Queue) Resume() {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	q.resumeLocked()
}

func (q *Queue) resumeLocked() {
	q.mu.RLock()
	cur, n := q.current, len(q.tracks)
	q.mu.RUnlock()

	if cur < 0 {
		if n > 0 {
			q.playLocked(0)
		}
		return
	}
	q.dispatch(Command{Kind: CommandPlay})
}

func (q *Queue) TogglePlayback() {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	if q.Status() != StatusPlaying {
		q.resumeLocked()
		return
	}
	q.dispatch(Command{Kind: CommandPause})
}

// SetPaused pauses or resumes explicitly.
func (q *Queue) SetPaused(paused bool) {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	if !paused {
		q.resumeLocked()
		return
	}
	if q.Status() == StatusPlaying {
		q.dispatch(Command{Kind: CommandPause})
	}
}

func (q *Queue) Stop() {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	q.stopLocked()
}

func (q *Queue) stopLocked() {
	q.mu.Lock()
	q.resetTransport()
	q.mu.Unlock()

	q.dispatch(Command{Kind: CommandStop})
}

// resetTransport requires mu.
func (q *Queue) resetTransport() {
	q.current = -1
	q.status = StatusStopped
	q.elapsed = 0
	q.since = time.Time{}
}

func (q *Queue) Next() {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	q.nextLocked()
}

func (q *Queue) nextLocked() {
	q.mu.RLock()
	cur, n := q.current, len(q.tracks)
	q.mu.RUnlock()

	if cur < 0 || cur+1 >= n {
		q.stopLocked()
		return
	}
	q.playLocked(cur + 1)
}

func (q *Queue) Previous() {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.RLock()
	cur := q.current
	q.mu.RUnlock()

	if cur <= 0 {
		q.stopLocked()
		return
	}
	q.playLocked(cur - 1)
}

// SetVolume clamps level to [0,100] and forwards it to the Bridge.
func (q *Queue) SetVolume(level int) int {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	return q.setVolumeLocked(clampVolume(level))
}

// AdjustVolume changes the volume by delta, clamped to [0,100].
func (q *Queue) AdjustVolume(delta int) int {
	q.opMu.Lock()
	defer q.opMu.Unlock()
	return q.setVolumeLocked(clampVolume(q.Volume() + delta))
}

func (q *Queue) setVolumeLocked(level int) int {
	q.mu.Lock()
	q.volume = level
	q.mu.Unlock()

	q.dispatch(Command{Kind: CommandSetVolume, Volume: level})
	return level
}

// advance moves past a finished track, unless the user already moved on.
func (q *Queue) advance(finishedID string) bool {
	q.opMu.Lock()
	defer q.opMu.Unlock()

	q.mu.RLock()
	stale := q.current < 0 || q.tracks[q.current].ID != finishedID
	q.mu.RUnlock()
	if stale {
		return false
	}

	q.nextLocked()
	return true
}

func (q *Queue) fold(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch ev.Kind {
	case EventPlaying:
		q.status = StatusPlaying
		if q.since.IsZero() {
			q.since = q.now()
		}
	case EventPaused:
		if !q.since.IsZero() {
			q.elapsed += q.now().Sub(q.since)
		}
		q.since = time.Time{}
		q.status = StatusPaused
	case EventStopped:
		q.elapsed = 0
		q.since = time.Time{}
		q.status = StatusStopped
	}
}

// dispatch drops directives once the Queue is closed.
func (q *Queue) dispatch(cmd Command) {
	if q.commands == nil {
		return
	}
	select {
	case q.commands <- cmd:
	case <-q.done:
	}
}

// Close stops forwarding directives. Mutators keep working on the queue
// state, which lets callers blocked on a stopped Bridge return.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue) Current() (music.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.current < 0 {
		return music.Track{}, false
	}
	return q.tracks[q.current].Clone(), true
}

func (q *Queue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

func (q *Queue) Status() Status {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.status
}

// Duration of the current track, zero when nothing is current.
func (q *Queue) Duration() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.current < 0 {
		return 0
	}
	return q.tracks[q.current].Duration()
}

func (q *Queue) Elapsed() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.elapsedLocked()
}

func (q *Queue) elapsedLocked() time.Duration {
	if q.since.IsZero() {
		return q.elapsed
	}
	return q.elapsed + q.now().Sub(q.since)
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

func (q *Queue) Volume() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.volume
}

func (q *Queue) Version() uint32 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.version
}

func (q *Queue) Track(index int) (music.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if index < 0 || index >= len(q.tracks) {
		return music.Track{}, false
	}
	return q.tracks[index].Clone(), true
}

func (q *Queue) Tracks() []music.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]music.Track, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = t.Clone()
	}
	return out
}

func clampVolume(level int) int {
	return min(max(level, MinVolume), MaxVolume)
}
