package projects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/core/coretest"
	"github.com/flybasist/gcbot/internal/dispatcher"
	"github.com/flybasist/gcbot/internal/store"
	"github.com/flybasist/gcbot/internal/store/jsonstore"
)

var (
	admin = core.Participant{ID: "1", Name: "Admin", Role: core.RoleAdmin}
	alice = core.Participant{ID: "2", Name: "Alice", Username: "alice", Role: core.RoleMember}
	bob   = core.Participant{ID: "3", Name: "Bob", Username: "bob", Role: core.RoleMember}
	hosts = []string{"x.com", "twitter.com"}
	ctxBg = context.Background()
)

type fixture struct {
	m    *Module
	repo store.Repository
	tr   *coretest.Transport
	path string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	repo, err := jsonstore.Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	m := New(repo, hosts, nil, zap.NewNop())
	next := 10000
	m.draw = func() int { next++; return next }
	return &fixture{m: m, repo: repo, tr: coretest.New("g1", admin, alice, bob), path: path}
}

func (f *fixture) run(t *testing.T, h core.HandlerFunc, who core.Participant, args string) string {
	t.Helper()
	mc := f.tr.Context("g1", who, args)
	mc.Args = args
	if err := h(mc); err != nil {
		t.Fatalf("handler(%q): %v", args, err)
	}
	return f.tr.LastText()
}

func TestQualifyingLinks(t *testing.T) {
	got := qualifyingLinks("look https://X.com/CoolProj/ and https://www.twitter.com/abc, also https://example.com/x and https://x.com/CoolProj", hosts)
	want := []string{"https://x.com/CoolProj", "https://twitter.com/abc"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("links = %v, want %v", got, want)
	}
	if hostMatches("notx.com", hosts) {
		t.Error("suffix without dot must not match")
	}
	if !hostMatches("mobile.twitter.com", hosts) {
		t.Error("subdomain must match")
	}
}

func TestWatchTracksOnce(t *testing.T) {
	f := newFixture(t)

	f.m.Watch(f.tr.Context("g1", alice, "new drop https://x.com/coolproj"))
	f.m.Watch(f.tr.Context("g1", bob, "same one https://x.com/coolproj"))
	f.m.Watch(f.tr.Context("g1", bob, "not tracked https://example.com"))

	ps, err := f.repo.Projects(ctxBg, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 || ps[0].SubmitterID != alice.ID || ps[0].Name != "coolproj" || ps[0].ID != "10001" {
		t.Fatalf("projects = %+v", ps)
	}
	if len(f.tr.Sent) != 1 || !strings.Contains(f.tr.Sent[0].Text, "#10001") {
		t.Errorf("announcements = %v", f.tr.Texts())
	}
}

func TestIDCollisionRedraws(t *testing.T) {
	f := newFixture(t)
	seq := []int{12345, 12345, 12345, 54321}
	f.m.draw = func() int {
		v := seq[0]
		if len(seq) > 1 {
			seq = seq[1:]
		}
		return v
	}

	f.run(t, f.m.handleAdd, admin, "https://x.com/one")
	f.run(t, f.m.handleAdd, admin, "https://x.com/two")

	ps, _ := f.repo.Projects(ctxBg, "g1")
	if len(ps) != 2 || ps[0].ID != "12345" || ps[1].ID != "54321" {
		t.Fatalf("projects = %+v", ps)
	}

	f.m.draw = func() int { return 12345 }
	mc := f.tr.Context("g1", admin, "")
	if _, err := f.m.create(mc, "https://x.com/three", ""); !errors.Is(err, ErrIDSpaceExhausted) {
		t.Errorf("err = %v, want ErrIDSpaceExhausted", err)
	}
}

func TestUniqueIDsWithNarrowRange(t *testing.T) {
	f := newFixture(t)
	n := 0
	f.m.draw = func() int { n++; return 10000 + n%3 }

	for i := 0; i < 3; i++ {
		f.run(t, f.m.handleAdd, admin, fmt.Sprintf("https://x.com/p%d", i))
	}
	ps, _ := f.repo.Projects(ctxBg, "g1")
	if len(ps) != 3 {
		t.Fatalf("projects = %+v", ps)
	}
	seen := make(map[string]bool)
	for _, p := range ps {
		if seen[p.ID] {
			t.Fatalf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestTopCapacity(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 11; i++ {
		f.run(t, f.m.handleAdd, admin, fmt.Sprintf("https://x.com/p%d", i))
	}
	for i := 1; i <= 10; i++ {
		got := f.run(t, f.m.handleTopAdd, admin, fmt.Sprintf("%d", 10000+i))
		if !strings.HasPrefix(got, "⭐") {
			t.Fatalf("admit %d: %q", i, got)
		}
	}

	got := f.run(t, f.m.handleTopAdd, admin, "10011")
	if !strings.Contains(got, "Top list is full") {
		t.Errorf("11th admit = %q", got)
	}
	entries, _ := f.repo.TopEntries(ctxBg, "g1")
	if len(entries) != 10 {
		t.Errorf("top size = %d", len(entries))
	}

	if got := f.run(t, f.m.handleTopAdd, admin, "10001"); got != "Already in top: #10001" {
		t.Errorf("duplicate admit = %q", got)
	}

	f.run(t, f.m.handleTopDel, admin, "10001")
	if got := f.run(t, f.m.handleTopAdd, admin, "10011"); !strings.HasPrefix(got, "⭐") {
		t.Errorf("admit after removal = %q", got)
	}
}

func TestTopAddByLinkCreatesProject(t *testing.T) {
	f := newFixture(t)

	f.run(t, f.m.handleTopAdd, alice, "https://x.com/fresh")
	entries, _ := f.repo.TopEntries(ctxBg, "g1")
	if len(entries) != 1 || !entries[0].AddedViaLink {
		t.Fatalf("entries = %+v", entries)
	}
	p, err := f.repo.ProjectByLink(ctxBg, "g1", "https://x.com/fresh")
	if err != nil || p.ID != entries[0].ProjectID {
		t.Errorf("project = %+v, err = %v", p, err)
	}
}

func TestDeleteCascadesAndRanking(t *testing.T) {
	f := newFixture(t)

	f.m.Watch(f.tr.Context("g1", alice, "https://x.com/a1"))
	f.m.Watch(f.tr.Context("g1", alice, "https://x.com/a2"))
	f.m.Watch(f.tr.Context("g1", bob, "https://x.com/b1"))
	f.run(t, f.m.handleTopAdd, admin, "10001")

	scores, err := Ranking(ctxBg, f.repo, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 || scores[0].UserID != alice.ID || scores[0].Points() != 700 || scores[1].Points() != 100 {
		t.Errorf("scores = %+v", scores)
	}
	got := f.run(t, f.m.handleRank, bob, "")
	if !strings.HasPrefix(got, "🏆 Points Ranking\n1. @alice: 700 pts") {
		t.Errorf("rank = %q", got)
	}

	f.run(t, f.m.handleDelete, admin, "10001")
	if entries, _ := f.repo.TopEntries(ctxBg, "g1"); len(entries) != 0 {
		t.Errorf("top entries survived project deletion: %+v", entries)
	}
	if got := f.run(t, f.m.handleDelete, admin, "10001"); got != "Not found: #10001" {
		t.Errorf("second delete = %q", got)
	}
}

func TestRankingTiesOrderedByUser(t *testing.T) {
	f := newFixture(t)
	// Одинаковые очки и одинаковые имена: порядок задаёт user id
	for i, id := range []string{"9", "5", "7", "6", "8"} {
		sam := core.Participant{ID: id, Name: "Sam", Role: core.RoleMember}
		f.m.Watch(f.tr.Context("g1", sam, fmt.Sprintf("https://x.com/sam%d", i)))
	}

	for attempt := 0; attempt < 20; attempt++ {
		scores, err := Ranking(ctxBg, f.repo, "g1")
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, s := range scores {
			ids = append(ids, s.UserID)
		}
		if got := strings.Join(ids, ","); got != "5,6,7,8,9" {
			t.Fatalf("attempt %d: order = %s", attempt, got)
		}
	}
}

func TestOtherGroupProjectsInvisible(t *testing.T) {
	f := newFixture(t)
	f.run(t, f.m.handleAdd, admin, "https://x.com/mine")

	f.tr.Groups["g2"] = &core.GroupInfo{ID: "g2", Participants: []core.Participant{admin}}
	mc := f.tr.Context("g2", admin, "")
	mc.Args = "10001"
	if err := f.m.handleDelete(mc); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Project(ctxBg, "10001"); err != nil {
		t.Errorf("project deleted from another group: %v", err)
	}
}

func TestAdminCommandsLeaveStoreUntouched(t *testing.T) {
	f := newFixture(t)
	f.run(t, f.m.handleAdd, admin, "https://x.com/seed")

	d := dispatcher.New(dispatcher.Options{Parser: dispatcher.Parser{Prefixes: []string{"!"}}}, zap.NewNop(), nil)
	d.Register(f.m.Commands()...)

	before, err := os.ReadFile(f.path)
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"!addproject https://x.com/evil", "!delproject 10001", "!topadd 10001", "!topdel 10001"} {
		f.tr.Reset()
		d.Handle(f.tr.Context("g1", bob, text))
		if f.tr.LastText() != core.AdminOnlyReply {
			t.Errorf("%s: reply = %q", text, f.tr.LastText())
		}
	}
	after, err := os.ReadFile(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("store changed after refused admin commands")
	}
}
