package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hxnx/spotmpd/internal/mpd"
	"github.com/hxnx/spotmpd/internal/playback"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Message is one frame of the feed.
type Message struct {
	Changed []string `json:"changed"`
	Status  Status   `json:"status"`
}

type Status struct {
	State          string     `json:"state"`
	Volume         int        `json:"volume"`
	Playlist       uint32     `json:"playlist"`
	PlaylistLength int        `json:"playlistlength"`
	Song           int        `json:"song"`
	Elapsed        float64    `json:"elapsed"`
	Duration       float64    `json:"duration"`
	Track          *TrackInfo `json:"track,omitempty"`
}

type TrackInfo struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Artists []string `json:"artists"`
	Album   string   `json:"album"`
}

func statusFrom(s playback.Snapshot) Status {
	st := Status{
		State:          s.Status.String(),
		Volume:         s.Volume,
		Playlist:       s.Version,
		PlaylistLength: s.Length,
		Song:           s.Current,
		Elapsed:        s.Elapsed.Seconds(),
		Duration:       s.Duration.Seconds(),
	}
	if s.Current >= 0 {
		st.Track = &TrackInfo{
			ID:      s.Track.ID,
			Title:   s.Track.Title,
			Artists: s.Track.Artists,
			Album:   s.Track.Album,
		}
	}
	return st
}

// Feed streams subsystem changes and a status snapshot to websocket
// clients on GET /events.
type Feed struct {
	notifier *mpd.Notifier
	queue    *playback.Queue
	logger   *zap.Logger
	server   *http.Server

	// done is closed by Shutdown.
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(notifier *mpd.Notifier, queue *playback.Queue, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{notifier: notifier, queue: queue, logger: logger, done: make(chan struct{})}
}

func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", f.serveEvents)
	return mux
}

// Start serves the feed on addr in the background.
func (f *Feed) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	f.server = &http.Server{Handler: f.Handler(), ReadHeaderTimeout: 10 * time.Second}
	f.logger.Info("feed listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("feed server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the listener and closes every connected client with
// StatusGoingAway.
func (f *Feed) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	f.mu.Unlock()

	var err error
	if f.server != nil {
		err = f.server.Shutdown(ctx)
	}

	handlersDone := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(handlersDone)
	}()
	select {
	case <-handlersDone:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (f *Feed) track() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.wg.Add(1)
	return true
}

func (f *Feed) serveEvents(w http.ResponseWriter, r *http.Request) {
	if !f.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer f.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		f.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := f.notifier.Subscribe()
	defer f.notifier.Unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	logger := f.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("feed client connected")

	if err := f.send(ctx, conn, []string{}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("feed client gone")
			return
		case <-f.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-sub.C():
			changes := sub.Drain()
			if len(changes) == 0 {
				continue
			}
			if err := f.send(ctx, conn, changes); err != nil {
				logger.Debug("feed write failed", zap.Error(err))
				return
			}
		}
	}
}

func (f *Feed) send(ctx context.Context, conn *websocket.Conn, changes []string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, Message{Changed: changes, Status: statusFrom(f.queue.Snapshot())})
}
