// Package storetest — общий набор проверок для всех реализаций store.Repository.
// Русский комментарий: Каждая реализация вызывает Run из своего _test.go,
// так поведение json, bolt и postgres хранилищ гарантированно совпадает.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flybasist/gcbot/internal/store"
)

// Factory создаёт пустое хранилище. reopen возвращает новое хранилище поверх тех же данных
// (имитация рестарта); может быть nil, если реализация этого не поддерживает.
type Factory func(t *testing.T) (repo store.Repository, reopen func() store.Repository)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Run запускает все проверки.
func Run(t *testing.T, newStore Factory) {
	t.Run("AntilinkFlag", func(t *testing.T) { testAntilinkFlag(t, newStore) })
	t.Run("Replies", func(t *testing.T) { testReplies(t, newStore) })
	t.Run("RateCounter", func(t *testing.T) { testRateCounter(t, newStore) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, newStore) })
	t.Run("TopListCapacity", func(t *testing.T) { testTopListCapacity(t, newStore) })
	t.Run("TopListConcurrent", func(t *testing.T) { testTopListConcurrent(t, newStore) })
	t.Run("DeleteProjectCascades", func(t *testing.T) { testDeleteCascade(t, newStore) })
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore) })
	t.Run("MemberTouchThrottled", func(t *testing.T) { testMemberTouchThrottled(t, newStore) })
}

func testAntilinkFlag(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, reopen := newStore(t)

	enabled, err := repo.AntilinkEnabled(ctx, "g1")
	if err != nil {
		t.Fatalf("AntilinkEnabled: %v", err)
	}
	if enabled {
		t.Fatal("absent flag must read as disabled")
	}

	if err := repo.SetAntilink(ctx, "g1", true); err != nil {
		t.Fatalf("SetAntilink: %v", err)
	}
	if enabled, _ := repo.AntilinkEnabled(ctx, "g1"); !enabled {
		t.Error("expected flag on after SetAntilink(true)")
	}
	if enabled, _ := repo.AntilinkEnabled(ctx, "g2"); enabled {
		t.Error("flag must be per group")
	}

	if reopen == nil {
		return
	}
	restarted := reopen()
	if enabled, err := restarted.AntilinkEnabled(ctx, "g1"); err != nil || !enabled {
		t.Errorf("flag did not survive restart: enabled=%v err=%v", enabled, err)
	}
}

func testReplies(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	if err := repo.SetReply(ctx, "g1", "hello", "Hi there"); err != nil {
		t.Fatalf("SetReply: %v", err)
	}
	if err := repo.SetReply(ctx, "g1", "hello", "Hi again"); err != nil {
		t.Fatalf("SetReply overwrite: %v", err)
	}

	replies, err := repo.Replies(ctx, "g1")
	if err != nil {
		t.Fatalf("Replies: %v", err)
	}
	if len(replies) != 1 || replies["hello"] != "Hi again" {
		t.Errorf("unexpected replies: %v", replies)
	}

	if err := repo.DeleteReply(ctx, "g1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteReply missing: expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteReply(ctx, "g1", "hello"); err != nil {
		t.Fatalf("DeleteReply: %v", err)
	}
	if replies, _ := repo.Replies(ctx, "g1"); len(replies) != 0 {
		t.Errorf("expected empty replies, got %v", replies)
	}
}

func testRateCounter(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)
	window := 24 * time.Hour

	for i := 1; i <= 2; i++ {
		c, allowed, err := repo.HitRateCounter(ctx, "u1", base.Add(time.Duration(i)*time.Minute), window, 2)
		if err != nil {
			t.Fatalf("HitRateCounter: %v", err)
		}
		if !allowed || c.Count != i {
			t.Fatalf("hit %d: allowed=%v count=%d", i, allowed, c.Count)
		}
	}

	c, allowed, err := repo.HitRateCounter(ctx, "u1", base.Add(time.Hour), window, 2)
	if err != nil {
		t.Fatalf("HitRateCounter: %v", err)
	}
	if allowed || c.Count != 2 {
		t.Errorf("third hit must be refused without increment: allowed=%v count=%d", allowed, c.Count)
	}

	c, allowed, _ = repo.HitRateCounter(ctx, "u1", base.Add(window+2*time.Minute), window, 2)
	if !allowed || c.Count != 1 {
		t.Errorf("window reset expected: allowed=%v count=%d", allowed, c.Count)
	}
}

func newProject(id, group string, offset time.Duration) store.Project {
	return store.Project{
		ID:            id,
		GroupID:       group,
		Link:          "https://x.com/p/" + id,
		Name:          "project " + id,
		SubmitterID:   "u1",
		SubmitterName: "Alice",
		CreatedAt:     base.Add(offset),
	}
}

func testProjects(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	p1 := newProject("10001", "g1", 0)
	if err := repo.CreateProject(ctx, p1); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	dupID := newProject("10001", "g1", time.Minute)
	dupID.Link = "https://x.com/other"
	if err := repo.CreateProject(ctx, dupID); !errors.Is(err, store.ErrExists) {
		t.Errorf("expected ErrExists on id collision, got %v", err)
	}

	dupLink := newProject("10002", "g1", time.Minute)
	dupLink.Link = p1.Link
	if err := repo.CreateProject(ctx, dupLink); !errors.Is(err, store.ErrDuplicateLink) {
		t.Errorf("expected ErrDuplicateLink, got %v", err)
	}

	// Та же ссылка в другой группе — отдельный проект
	other := newProject("10003", "g2", time.Minute)
	other.Link = p1.Link
	if err := repo.CreateProject(ctx, other); err != nil {
		t.Errorf("same link in another group must be allowed: %v", err)
	}

	if err := repo.CreateProject(ctx, newProject("10004", "g1", 2*time.Minute)); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := repo.Project(ctx, "10001")
	if err != nil || got.Link != p1.Link || got.SubmitterName != "Alice" {
		t.Errorf("Project: got %+v err=%v", got, err)
	}
	if _, err := repo.Project(ctx, "99999"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	byLink, err := repo.ProjectByLink(ctx, "g2", p1.Link)
	if err != nil || byLink.ID != "10003" {
		t.Errorf("ProjectByLink: got %+v err=%v", byLink, err)
	}

	list, err := repo.Projects(ctx, "g1")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(list) != 2 || list[0].ID != "10001" || list[1].ID != "10004" {
		t.Errorf("unexpected project list: %+v", list)
	}
}

func testTopListCapacity(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	for i := 0; i < store.TopListCapacity+1; i++ {
		id := fmt.Sprintf("2%04d", i)
		if err := repo.CreateProject(ctx, newProject(id, "g1", time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("CreateProject %s: %v", id, err)
		}
	}

	for i := 0; i < store.TopListCapacity; i++ {
		e := store.TopEntry{ProjectID: fmt.Sprintf("2%04d", i), GroupID: "g1", AddedBy: "admin", AddedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.AddTopEntry(ctx, e, store.TopListCapacity); err != nil {
			t.Fatalf("AddTopEntry %d: %v", i, err)
		}
	}

	dup := store.TopEntry{ProjectID: "20000", GroupID: "g1", AddedAt: base}
	if err := repo.AddTopEntry(ctx, dup, store.TopListCapacity+5); !errors.Is(err, store.ErrExists) {
		t.Errorf("expected ErrExists for duplicate entry, got %v", err)
	}

	extra := store.TopEntry{ProjectID: fmt.Sprintf("2%04d", store.TopListCapacity), GroupID: "g1", AddedAt: base.Add(time.Hour)}
	if err := repo.AddTopEntry(ctx, extra, store.TopListCapacity); !errors.Is(err, store.ErrTopListFull) {
		t.Errorf("expected ErrTopListFull, got %v", err)
	}

	missing := store.TopEntry{ProjectID: "77777", GroupID: "g1", AddedAt: base}
	if err := repo.RemoveTopEntry(ctx, "g1", "77777"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("RemoveTopEntry missing: expected ErrNotFound, got %v", err)
	}
	if err := repo.AddTopEntry(ctx, missing, store.TopListCapacity+5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddTopEntry for unknown project: expected ErrNotFound, got %v", err)
	}

	entries, err := repo.TopEntries(ctx, "g1")
	if err != nil {
		t.Fatalf("TopEntries: %v", err)
	}
	if len(entries) != store.TopListCapacity {
		t.Fatalf("expected %d entries, got %d", store.TopListCapacity, len(entries))
	}
	if entries[0].ProjectID != "20000" {
		t.Errorf("entries must be ordered by AddedAt, first=%s", entries[0].ProjectID)
	}

	if err := repo.RemoveTopEntry(ctx, "g1", "20003"); err != nil {
		t.Fatalf("RemoveTopEntry: %v", err)
	}
	if err := repo.AddTopEntry(ctx, extra, store.TopListCapacity); err != nil {
		t.Errorf("AddTopEntry after removal: %v", err)
	}
}

func testTopListConcurrent(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	const attempts = 25
	for i := 0; i < attempts; i++ {
		if err := repo.CreateProject(ctx, newProject(fmt.Sprintf("3%04d", i), "g1", time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("CreateProject: %v", err)
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		admits int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := store.TopEntry{ProjectID: fmt.Sprintf("3%04d", i), GroupID: "g1", AddedAt: base.Add(time.Duration(i) * time.Millisecond)}
			if err := repo.AddTopEntry(ctx, e, store.TopListCapacity); err == nil {
				mu.Lock()
				admits++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	entries, err := repo.TopEntries(ctx, "g1")
	if err != nil {
		t.Fatalf("TopEntries: %v", err)
	}
	if admits != store.TopListCapacity || len(entries) != store.TopListCapacity {
		t.Errorf("concurrent admits exceeded capacity: admits=%d entries=%d", admits, len(entries))
	}
}

func testDeleteCascade(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	if err := repo.CreateProject(ctx, newProject("40001", "g1", 0)); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := repo.CreateProject(ctx, newProject("40002", "g1", time.Second)); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	for _, id := range []string{"40001", "40002"} {
		if err := repo.AddTopEntry(ctx, store.TopEntry{ProjectID: id, GroupID: "g1", AddedAt: base}, store.TopListCapacity); err != nil {
			t.Fatalf("AddTopEntry: %v", err)
		}
	}

	if err := repo.DeleteProject(ctx, "40001"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if err := repo.DeleteProject(ctx, "40001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}

	entries, _ := repo.TopEntries(ctx, "g1")
	if len(entries) != 1 || entries[0].ProjectID != "40002" {
		t.Errorf("cascade failed, entries: %+v", entries)
	}
}

func testMembers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	members := []store.Member{
		{GroupID: "g1", UserID: "2", Name: "Bob", SeenAt: base},
		{GroupID: "g1", UserID: "1", Name: "Alice", Username: "alice", SeenAt: base},
		{GroupID: "g2", UserID: "3", Name: "Carol", SeenAt: base},
	}
	for _, m := range members {
		if err := repo.TouchMember(ctx, m); err != nil {
			t.Fatalf("TouchMember: %v", err)
		}
	}
	// Повторное касание обновляет запись, а не дублирует её
	if err := repo.TouchMember(ctx, store.Member{GroupID: "g1", UserID: "2", Name: "Bobby", SeenAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}

	got, err := repo.Members(ctx, "g1")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "1" || got[1].Name != "Bobby" {
		t.Errorf("unexpected members: %+v", got)
	}
}

func testMemberTouchThrottled(t *testing.T, newStore Factory) {
	ctx := context.Background()
	repo, _ := newStore(t)

	alice := store.Member{GroupID: "g1", UserID: "1", Name: "Alice", Username: "alice", SeenAt: base}
	if err := repo.TouchMember(ctx, alice); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}

	seenAt := func() time.Time {
		t.Helper()
		got, err := repo.Members(ctx, "g1")
		if err != nil || len(got) != 1 {
			t.Fatalf("Members = %+v, %v", got, err)
		}
		return got[0].SeenAt
	}

	// Тот же участник внутри интервала: запись не переписывается
	again := alice
	again.SeenAt = base.Add(store.MemberTouchInterval / 2)
	if err := repo.TouchMember(ctx, again); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}
	if got := seenAt(); !got.Equal(base) {
		t.Errorf("unchanged member rewritten: seen_at = %v, want %v", got, base)
	}

	// После интервала seen_at обновляется
	again.SeenAt = base.Add(store.MemberTouchInterval)
	if err := repo.TouchMember(ctx, again); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}
	if got := seenAt(); !got.Equal(again.SeenAt) {
		t.Errorf("seen_at = %v, want %v", got, again.SeenAt)
	}

	// Смена имени пишется сразу
	renamed := again
	renamed.Name = "Alicia"
	renamed.SeenAt = again.SeenAt.Add(time.Second)
	if err := repo.TouchMember(ctx, renamed); err != nil {
		t.Fatalf("TouchMember: %v", err)
	}
	got, _ := repo.Members(ctx, "g1")
	if len(got) != 1 || got[0].Name != "Alicia" {
		t.Errorf("rename not stored: %+v", got)
	}
}
