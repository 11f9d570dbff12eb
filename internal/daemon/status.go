package daemon

import (
	"time"

	"go.uber.org/zap"
)

const statusLogInterval = 60 * time.Second

func (d *Daemon) startStatusLogger() {
	if d.statusStop != nil {
		return
	}
	stop := make(chan struct{})
	d.statusStop = stop
	go func() {
		ticker := time.NewTicker(statusLogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.logStatus()
			}
		}
	}()
}

func (d *Daemon) stopStatusLogger() {
	if d.statusStop == nil {
		return
	}
	close(d.statusStop)
	d.statusStop = nil
}

func (d *Daemon) logStatus() {
	s := d.queue.Snapshot()
	fields := []zap.Field{
		zap.Stringer("state", s.Status),
		zap.Int("queue", s.Length),
		zap.Int("volume", s.Volume),
	}
	if s.Current >= 0 {
		fields = append(fields,
			zap.String("track", s.Track.Title),
			zap.Duration("elapsed", s.Elapsed.Truncate(time.Second)),
		)
	}
	d.logger.Info("status", fields...)
}
