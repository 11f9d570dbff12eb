package feed

import (
	"context"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hxnx/spotmpd/internal/mpd"
	"github.com/hxnx/spotmpd/internal/music"
	"github.com/hxnx/spotmpd/internal/playback"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestFeedStreamsChanges(t *testing.T) {
	notifier := mpd.NewNotifier()
	queue := playback.NewQueue(nil, playback.WithVolume(40))
	f := New(notifier, queue, zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))

	srv := httptest.NewServer(f.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first Message
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if len(first.Changed) != 0 || first.Status.State != "stop" || first.Status.Volume != 40 {
		t.Fatalf("unexpected initial frame %+v", first)
	}
	if first.Status.Track != nil {
		t.Fatalf("unexpected track in initial frame %+v", first.Status.Track)
	}

	queue.Append(music.Track{ID: "abc", Title: "Song"})
	notifier.Notify(mpd.SubsystemPlaylist)

	var next Message
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read change frame: %v", err)
	}
	if !slices.Equal(next.Changed, []string{"playlist"}) {
		t.Fatalf("unexpected changes %v", next.Changed)
	}
	if next.Status.PlaylistLength != 1 || next.Status.Playlist != 2 {
		t.Fatalf("unexpected status %+v", next.Status)
	}
}

func TestStatusFromPlayingSnapshot(t *testing.T) {
	st := statusFrom(playback.Snapshot{
		Current:  0,
		Status:   playback.StatusPlaying,
		Elapsed:  1500 * time.Millisecond,
		Duration: time.Minute,
		Track:    music.Track{ID: "abc", Title: "Song", Artists: []string{"A"}},
	})

	if st.State != "play" || st.Elapsed != 1.5 || st.Duration != 60 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Track == nil || st.Track.ID != "abc" {
		t.Fatalf("unexpected track %+v", st.Track)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	notifier := mpd.NewNotifier()
	f := New(notifier, playback.NewQueue(nil), zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))

	srv := httptest.NewServer(f.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var first Message
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- f.Shutdown(ctx) }()

	var next Message
	err = wsjson.Read(ctx, conn, &next)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Fatalf("close status = %v (err %v), want %v", got, err, websocket.StatusGoingAway)
	}
	if err := <-shutdownErr; err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, _, err := websocket.Dial(ctx, url, nil); err == nil {
		t.Fatal("dial succeeded after shutdown")
	}
}
