package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Izileth/lp-ebook/pkg/domain"
)

func sampleSession() domain.Session {
	return domain.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:         domain.Identity{ID: "user-1", Email: "ana@example.com"},
	}
}

func TestFilePersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	p := NewFilePersister(path)

	got, err := p.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty load, got %v, %v", got, err)
	}
	if err := p.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
	got, err = p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.AccessToken != "access" || got.User.ID != "user-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestRedisPersister(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := NewRedisPersister(mr.Addr(), "", "test:session", time.Hour)

	if got, err := p.Load(ctx); err != nil || got != nil {
		t.Fatalf("expected empty load, got %v, %v", got, err)
	}
	if err := p.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("test:session"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.RefreshToken != "refresh" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("test:session") {
		t.Fatalf("session key should be deleted")
	}
}

func TestRedisPersisterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewRedisPersister(mr.Addr(), "", "", 0)
	mr.Close()
	if _, err := p.Load(context.Background()); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
