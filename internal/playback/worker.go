package playback

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const recordTimeout = 2 * time.Second

// Notifier receives the names of subsystems whose state changed.
type Notifier interface {
	Notify(subsystems ...string)
}

// Worker is the single consumer of transport events. It folds them into
// the Queue and turns end of track into an advance.
type Worker struct {
	queue    *Queue
	events   <-chan Event
	recorder Recorder
	notifier Notifier
	logger   *zap.Logger
}

func NewWorker(queue *Queue, events <-chan Event, recorder Recorder, notifier Notifier, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		events:   events,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
	}
}

func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *Worker) handle(ctx context.Context, ev Event) {
	w.logger.Debug("transport event", zap.Stringer("event", ev.Kind), zap.String("track", ev.TrackID))

	if ev.Kind == EventFinishedTrack {
		w.record(ctx, ev.TrackID)
		if !w.queue.advance(ev.TrackID) {
			w.logger.Debug("ignoring stale end of track", zap.String("track", ev.TrackID))
		}
	} else {
		w.queue.fold(ev)
	}

	if w.notifier != nil {
		w.notifier.Notify("player")
	}
}

func (w *Worker) record(ctx context.Context, trackID string) {
	if w.recorder == nil {
		return
	}
	track, ok := w.queue.Current()
	if !ok || track.ID != trackID {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	if err := w.recorder.Record(ctx, track, w.queue.Elapsed()); err != nil {
		w.logger.Warn("failed to record play", zap.String("track", trackID), zap.Error(err))
	}
}
