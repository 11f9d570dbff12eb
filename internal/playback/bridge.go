package playback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const resolveTimeout = 30 * time.Second

// Session is the streaming backend. Only the Bridge calls it.
//
// Load returns a channel that receives exactly one value: nil when the
// track played to the end, or an error when it was interrupted.
type Session interface {
	Load(ctx context.Context, ref string, autostart bool, position time.Duration) (<-chan error, error)
	Play() error
	Pause() error
	Stop() error
	SetMixerGain(gain uint16)
}

// Resolver maps a catalog id to a reference the Session can load.
type Resolver interface {
	StreamURL(ctx context.Context, id string) (string, error)
}

// Bridge executes directives against the Session on one goroutine.
// Events are buffered internally so the Bridge never blocks on a slow
// consumer.
type Bridge struct {
	session  Session
	resolver Resolver
	commands <-chan Command
	events   chan<- Event
	logger   *zap.Logger

	trackDone <-chan error
	trackID   string
	loaded    bool
	pending   []Event
}

func NewBridge(session Session, resolver Resolver, commands <-chan Command, events chan<- Event, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		session:  session,
		resolver: resolver,
		commands: commands,
		events:   events,
		logger:   logger,
	}
}

func (b *Bridge) Run(ctx context.Context) {
	defer func() {
		if err := b.session.Stop(); err != nil {
			b.logger.Warn("failed to stop session", zap.Error(err))
		}
	}()

	for {
		var out chan<- Event
		var next Event
		if len(b.pending) > 0 {
			out = b.events
			next = b.pending[0]
		}

		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-b.commands:
			if !ok {
				return
			}
			b.handle(ctx, cmd)
		case out <- next:
			b.pending = b.pending[1:]
		case err := <-b.trackDone:
			b.trackDone = nil
			b.loaded = false
			if err == nil {
				b.emit(Event{Kind: EventFinishedTrack, TrackID: b.trackID})
			} else if !errors.Is(err, ErrCanceled) {
				b.logger.Warn("track interrupted", zap.String("track", b.trackID), zap.Error(err))
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, cmd Command) {
	b.logger.Debug("directive", zap.Stringer("command", cmd.Kind), zap.String("track", cmd.TrackID))

	switch cmd.Kind {
	case CommandLoad:
		b.load(ctx, cmd.TrackID)
	case CommandPlay:
		if !b.loaded {
			b.logger.Debug("play ignored, nothing loaded")
			return
		}
		if err := b.session.Play(); err != nil {
			b.logger.Warn("play failed", zap.Error(err))
			return
		}
		b.emit(Event{Kind: EventPlaying})
	case CommandPause:
		if err := b.session.Pause(); err != nil {
			b.logger.Warn("pause failed", zap.Error(err))
		}
		b.emit(Event{Kind: EventPaused})
	case CommandStop:
		if err := b.session.Stop(); err != nil {
			b.logger.Warn("stop failed", zap.Error(err))
		}
		b.trackDone = nil
		b.loaded = false
		b.emit(Event{Kind: EventStopped})
	case CommandSetVolume:
		b.session.SetMixerGain(VolumeToGain(cmd.Volume))
	}
}

// load failures emit nothing. The previous stream is unloaded either way,
// so a following Play has nothing to start.
func (b *Bridge) load(ctx context.Context, id string) {
	b.unload()

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	ref, err := b.resolver.StreamURL(rctx, id)
	cancel()
	if err != nil {
		b.logger.Error("failed to resolve track", zap.String("track", id), zap.Error(err))
		return
	}

	done, err := b.session.Load(ctx, ref, false, 0)
	if err != nil {
		b.logger.Error("failed to load track", zap.String("track", id), zap.Error(err))
		return
	}
	b.trackDone = done
	b.trackID = id
	b.loaded = true
}

func (b *Bridge) unload() {
	if b.loaded {
		if err := b.session.Stop(); err != nil {
			b.logger.Warn("failed to stop previous track", zap.Error(err))
		}
	}
	b.trackDone = nil
	b.trackID = ""
	b.loaded = false
}

func (b *Bridge) emit(ev Event) {
	b.pending = append(b.pending, ev)
}
