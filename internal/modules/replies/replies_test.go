package replies

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/core/coretest"
	"github.com/flybasist/gcbot/internal/store/jsonstore"
)

var (
	admin  = core.Participant{ID: "1", Name: "Admin", Role: core.RoleAdmin}
	member = core.Participant{ID: "2", Name: "Member", Role: core.RoleMember}
)

func newModule(t *testing.T) (*Module, *coretest.Transport) {
	t.Helper()
	repo, err := jsonstore.Open(filepath.Join(t.TempDir(), "db.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return New(repo, zap.NewNop()), coretest.New("g1", admin, member)
}

func run(t *testing.T, m *Module, tr *coretest.Transport, who core.Participant, args string) string {
	t.Helper()
	mc := tr.Context("g1", who, "!crp "+args)
	mc.Command, mc.Args = "crp", args
	if err := m.handleCRP(mc); err != nil {
		t.Fatalf("crp %q: %v", args, err)
	}
	return tr.LastText()
}

func TestSetMatchDelete(t *testing.T) {
	m, tr := newModule(t)

	if got := run(t, m, tr, admin, "set Hello = Hi there!"); got != "✅ Saved custom reply for hello" {
		t.Errorf("set reply = %q", got)
	}

	reply, ok := m.Match(context.Background(), "g1", "  HELLO  ")
	if !ok || reply != "Hi there!" {
		t.Errorf("Match = %q, %v", reply, ok)
	}
	if _, ok := m.Match(context.Background(), "g1", "hello world"); ok {
		t.Error("match must be exact")
	}
	if _, ok := m.Match(context.Background(), "g2", "hello"); ok {
		t.Error("replies must be per group")
	}

	if got := run(t, m, tr, member, "list"); got != "📒 Custom Replies\n• hello → Hi there!" {
		t.Errorf("list = %q", got)
	}

	if got := run(t, m, tr, admin, "del hello"); got != "🗑️ Deleted custom reply for hello" {
		t.Errorf("del reply = %q", got)
	}
	if got := run(t, m, tr, admin, "del hello"); got != "Not found: hello" {
		t.Errorf("second del = %q", got)
	}
	if got := run(t, m, tr, member, "list"); got != msgEmpty {
		t.Errorf("empty list = %q", got)
	}
}

func TestNonAdminCannotMutate(t *testing.T) {
	m, tr := newModule(t)

	if got := run(t, m, tr, member, "set gm=good morning"); got != core.AdminOnlyReply {
		t.Errorf("set by member = %q", got)
	}
	if _, ok := m.Match(context.Background(), "g1", "gm"); ok {
		t.Error("member managed to store a reply")
	}

	run(t, m, tr, admin, "set gm=good morning")
	if got := run(t, m, tr, member, "del gm"); got != core.AdminOnlyReply {
		t.Errorf("del by member = %q", got)
	}
	if _, ok := m.Match(context.Background(), "g1", "gm"); !ok {
		t.Error("member managed to delete a reply")
	}
}

func TestUsage(t *testing.T) {
	m, tr := newModule(t)

	tests := []struct {
		args string
		want string
	}{
		{"", msgMenu},
		{"unknown", msgMenu},
		{"set", msgSetUsage},
		{"set novalue", msgSetUsage},
		{"set =reply", msgSetUsage},
		{"set key=", msgSetUsage},
		{"del", msgDelUsage},
	}
	for _, tt := range tests {
		if got := run(t, m, tr, admin, tt.args); got != tt.want {
			t.Errorf("crp %q = %q, want %q", tt.args, got, tt.want)
		}
	}
}
