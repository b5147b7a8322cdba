package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
	"github.com/flybasist/gcbot/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (store.Repository, func() store.Repository) {
		path := filepath.Join(t.TempDir(), "session", "db.json")
		s, err := Open(path, zap.NewNop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		reopen := func() store.Repository {
			again, err := Open(path, zap.NewNop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			return again
		}
		return s, reopen
	})
}

func TestOpenLegacyDocument(t *testing.T) {
	// Файл в формате старого бота: только antilink и customReplies
	path := filepath.Join(t.TempDir(), "db.json")
	legacy := `{"antilink":{"g1":true},"customReplies":{"g1":{"gm":"good morning"}}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	if on, _ := s.AntilinkEnabled(ctx, "g1"); !on {
		t.Error("legacy antilink flag lost")
	}
	replies, _ := s.Replies(ctx, "g1")
	if replies["gm"] != "good morning" {
		t.Errorf("legacy reply lost: %v", replies)
	}
	// Новые секции создаются лениво
	if _, _, err := s.HitRateCounter(ctx, "u1", time.Now(), time.Hour, 0); err != nil {
		t.Errorf("HitRateCounter on legacy document: %v", err)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, zap.NewNop()); err == nil {
		t.Error("expected error for corrupt document")
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetAntilink(context.Background(), "g1", true); err != nil {
		t.Fatal(err)
	}

	name, err := s.Backup(context.Background(), filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	restored, err := Open(name, zap.NewNop())
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	if on, _ := restored.AntilinkEnabled(context.Background(), "g1"); !on {
		t.Error("backup does not contain antilink flag")
	}
}

func TestUnchangedMemberTouchSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := store.Member{GroupID: "g1", UserID: "1", Name: "Alice", SeenAt: now}
	if err := s.TouchMember(ctx, m); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	old := now.Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 20; i++ {
		m.SeenAt = now.Add(time.Duration(i) * time.Second)
		if err := s.TouchMember(ctx, m); err != nil {
			t.Fatalf("TouchMember: %v", err)
		}
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("document rewritten for unchanged member")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Errorf("mtime changed: %v", info.ModTime())
	}
}
