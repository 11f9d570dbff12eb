package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
	"github.com/hxnx/spotmpd/internal/playback"
)

var _ playback.Recorder = (*HistoryRepository)(nil)

func TestConnectionString(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "mpd", DBName: "spotmpd", SSLMode: "disable"}
	want := "host=db port=5432 user=mpd dbname=spotmpd sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	cfg.Password = "pw"
	if got := cfg.ConnectionString(); got != want+" password=pw" {
		t.Fatalf("unexpected connection string %q", got)
	}
}

func TestInitializeRequiresHost(t *testing.T) {
	if _, err := Initialize(context.Background(), &Config{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if GetDB() != nil {
		t.Fatal("pool should stay unset")
	}
}

func TestHistoryRepositoryWithoutDatabase(t *testing.T) {
	var nilRepo *HistoryRepository
	repo := NewHistoryRepository(nil)

	for _, r := range []*HistoryRepository{nilRepo, repo} {
		if err := r.Record(context.Background(), music.Track{ID: "x"}, time.Minute); err != nil {
			t.Fatalf("Record: %v", err)
		}
		count, total, err := r.Totals(context.Background())
		if err != nil || count != 0 || total != 0 {
			t.Fatalf("Totals = %d, %v, %v", count, total, err)
		}
		ids, err := r.Recent(context.Background(), 5)
		if err != nil || ids != nil {
			t.Fatalf("Recent = %v, %v", ids, err)
		}
	}
}
