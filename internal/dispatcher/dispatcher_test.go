package dispatcher

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/core/coretest"
	"github.com/flybasist/gcbot/internal/metrics"
)

var (
	admin  = core.Participant{ID: "1", Name: "Admin", Role: core.RoleAdmin}
	member = core.Participant{ID: "2", Name: "Member", Role: core.RoleMember}
)

func testParser() Parser {
	return Parser{Prefixes: []string{"!", "/"}, Sigil: "$", BotUsername: "gcbot"}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category Category
		keyword  string
		args     string
	}{
		{"plain text", "hello world", CategoryText, "", ""},
		{"empty", "   ", CategoryText, "", ""},
		{"bang command", "!TagAll", CategoryCommand, "tagall", ""},
		{"slash command with args", "/crp set gm=good morning", CategoryCommand, "crp", "set gm=good morning"},
		{"args trimmed", "  !antilink   on  ", CategoryCommand, "antilink", "on"},
		{"own bot mention", "/help@GCBot", CategoryCommand, "help", ""},
		{"other bot mention", "/help@otherbot", CategoryText, "", ""},
		{"bare prefix", "!", CategoryText, "", ""},
		{"price sigil", "$PEPE", CategoryPrice, "", "PEPE"},
		{"price sigil with tail", "$sol to the moon", CategoryPrice, "", "sol"},
		{"dollar amount is text", "$100 please", CategoryText, "", ""},
		{"lone sigil", "$", CategoryText, "", ""},
	}

	p := testParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, cmd := p.Parse(tt.text)
			if cat != tt.category {
				t.Fatalf("category = %q, want %q", cat, tt.category)
			}
			if cmd.Keyword != tt.keyword || cmd.Args != tt.args {
				t.Errorf("command = %+v, want keyword=%q args=%q", cmd, tt.keyword, tt.args)
			}
		})
	}
}

func TestNormalizeTrigger(t *testing.T) {
	if got := NormalizeTrigger("  Hello  "); got != "hello" {
		t.Errorf("NormalizeTrigger = %q, want %q", got, "hello")
	}
}

type stubModerator struct{ handle bool }

func (s stubModerator) Moderate(*core.MessageContext) bool { return s.handle }

type stubReplies map[string]string

func (s stubReplies) Match(_ context.Context, _, text string) (string, bool) {
	r, ok := s[NormalizeTrigger(text)]
	return r, ok
}

type countingWatcher struct{ seen []string }

func (w *countingWatcher) Watch(mc *core.MessageContext) { w.seen = append(w.seen, mc.Message.Text) }

func newTestDispatcher() (*Dispatcher, *coretest.Transport) {
	tr := coretest.New("g1", admin, member)
	d := New(Options{Parser: testParser(), PriceCommand: "price"}, zap.NewNop(), metrics.New(),
		core.ErrorReplyMiddleware(zap.NewNop()),
		core.PanicRecoveryMiddleware(zap.NewNop()),
	)
	return d, tr
}

func TestHandleOrder(t *testing.T) {
	d, tr := newTestDispatcher()
	var calls []string
	d.Register(
		core.BotCommand{Command: "hello", Handler: func(mc *core.MessageContext) error {
			calls = append(calls, "cmd:"+mc.Args)
			return nil
		}},
		core.BotCommand{Command: "price", Handler: func(mc *core.MessageContext) error {
			calls = append(calls, "price:"+mc.Args)
			return nil
		}},
	)
	d.SetReplies(stubReplies{"hello": "Hi!"})
	w := &countingWatcher{}
	d.AddWatcher(w)

	d.Handle(tr.Context("g1", member, "  Hello  "))
	if tr.LastText() != "Hi!" {
		t.Errorf("trigger should match trimmed case-insensitive text, got %q", tr.LastText())
	}
	if last, _ := tr.Last(); last.ReplyTo != "m-2" {
		t.Errorf("custom reply must answer the trigger message, ReplyTo=%q", last.ReplyTo)
	}

	d.Handle(tr.Context("g1", member, "!hello there"))
	d.Handle(tr.Context("g1", member, "$BTC"))
	d.Handle(tr.Context("g1", member, "!unknown"))
	d.Handle(tr.Context("g1", member, "just chatting"))

	if len(calls) != 2 || calls[0] != "cmd:there" || calls[1] != "price:BTC" {
		t.Errorf("unexpected calls: %v", calls)
	}
	if len(tr.Sent) != 1 {
		t.Errorf("unknown commands and plain text must be ignored, sent: %v", tr.Texts())
	}
	// Watcher видит некомандные сообщения, включая совпавшие триггеры
	if len(w.seen) != 3 {
		t.Errorf("watcher saw %v", w.seen)
	}
}

func TestModerationShortCircuits(t *testing.T) {
	d, tr := newTestDispatcher()
	called := false
	d.Register(core.BotCommand{Command: "hello", Handler: func(*core.MessageContext) error {
		called = true
		return nil
	}})
	d.SetModerator(stubModerator{handle: true})
	d.SetReplies(stubReplies{"!hello": "reply"})

	d.Handle(tr.Context("g1", member, "!hello"))
	if called || len(tr.Sent) != 0 {
		t.Error("moderated message must not reach replies or commands")
	}
}

func TestAdminOnlyRefusal(t *testing.T) {
	d, tr := newTestDispatcher()
	mutated := false
	d.Register(core.BotCommand{Command: "lock", AdminOnly: true, Handler: func(*core.MessageContext) error {
		mutated = true
		return nil
	}})

	d.Handle(tr.Context("g1", member, "!lock"))
	if mutated {
		t.Fatal("admin-only handler ran for non-admin")
	}
	if tr.LastText() != core.AdminOnlyReply {
		t.Errorf("expected refusal, got %q", tr.LastText())
	}

	d.Handle(tr.Context("g1", admin, "!lock"))
	if !mutated {
		t.Error("admin-only handler did not run for admin")
	}
}

func TestHandlerFailuresDegradeToGenericReply(t *testing.T) {
	d, tr := newTestDispatcher()
	d.Register(
		core.BotCommand{Command: "boom", Handler: func(*core.MessageContext) error { panic("kaboom") }},
		core.BotCommand{Command: "fail", Handler: func(*core.MessageContext) error { return errors.New("broken") }},
		core.BotCommand{Command: "ok", Handler: func(mc *core.MessageContext) error { return mc.Reply("fine") }},
	)

	d.Handle(tr.Context("g1", member, "!boom"))
	d.Handle(tr.Context("g1", member, "!fail"))
	d.Handle(tr.Context("g1", member, "!ok"))

	texts := tr.Texts()
	if len(texts) != 3 || texts[0] != core.GenericErrorReply || texts[1] != core.GenericErrorReply || texts[2] != "fine" {
		t.Errorf("unexpected replies: %v", texts)
	}
}

func TestPrivateMessagesIgnored(t *testing.T) {
	d, tr := newTestDispatcher()
	d.Register(core.BotCommand{Command: "ok", Handler: func(mc *core.MessageContext) error { return mc.Reply("fine") }})

	mc := tr.Context("g1", member, "!ok")
	mc.Message.IsGroup = false
	d.Handle(mc)
	if len(tr.Sent) != 0 {
		t.Error("private messages must be ignored")
	}
}

func TestReRegisterOverwritesCommand(t *testing.T) {
	d, tr := newTestDispatcher()
	d.Register(core.BotCommand{Command: "ping", Handler: func(mc *core.MessageContext) error { return mc.Reply("old") }})
	d.Register(core.BotCommand{Command: "ping", Handler: func(mc *core.MessageContext) error { return mc.Reply("new") }})

	d.Handle(tr.Context("g1", member, "!ping"))
	if texts := tr.Texts(); len(texts) != 1 || texts[0] != "new" {
		t.Errorf("replies = %v, want only the latest handler", texts)
	}
}
