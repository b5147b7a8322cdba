package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v3"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/store"
)

func TestConvertMessage(t *testing.T) {
	m := &tele.Message{
		ID:       42,
		Caption:  "check this",
		Chat:     &tele.Chat{ID: -100123, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 7, FirstName: "Ann", LastName: "Lee", Username: "ann"},
		Unixtime: 1700000000,
	}
	msg, ok := convertMessage(m)
	if !ok {
		t.Fatal("message rejected")
	}
	if msg.ID != "42" || msg.GroupID != "-100123" || msg.SenderID != "7" || msg.SenderName != "Ann Lee" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Text != "check this" || !msg.IsGroup {
		t.Errorf("text=%q group=%v", msg.Text, msg.IsGroup)
	}

	m.Chat.Type = tele.ChatPrivate
	if msg, _ := convertMessage(m); msg.IsGroup {
		t.Error("private chat reported as group")
	}

	m.Sender.IsBot = true
	if _, ok := convertMessage(m); ok {
		t.Error("bot messages must be skipped")
	}
}

func TestMergeParticipants(t *testing.T) {
	admins := []tele.ChatMember{
		{Role: tele.Creator, User: &tele.User{ID: 1, FirstName: "Owner"}},
		{Role: tele.Administrator, User: &tele.User{ID: 2, FirstName: "Mod", Username: "mod"}},
	}
	members := []store.Member{
		{UserID: "2", Name: "Mod"},
		{UserID: "3", Name: "Reader", Username: "reader"},
	}

	ps := mergeParticipants(admins, members)
	if len(ps) != 3 {
		t.Fatalf("participants = %+v", ps)
	}
	want := map[string]core.Role{"1": core.RoleCreator, "2": core.RoleAdmin, "3": core.RoleMember}
	for _, p := range ps {
		if p.Role != want[p.ID] {
			t.Errorf("%s: role = %s, want %s", p.ID, p.Role, want[p.ID])
		}
	}
}

func TestMentionEntitiesUseUTF16Offsets(t *testing.T) {
	text := "📢 Tagging All Members:\n\n@Anna @bob @Zoë"
	mentions := []core.Participant{
		{ID: "10", Name: "Anna"},
		{ID: "11", Name: "Bob", Username: "bob"},
		{ID: "12", Name: "Zoë"},
	}

	entities := mentionEntities(text, mentions)
	if len(entities) != 2 {
		t.Fatalf("entities = %+v", entities)
	}
	// 📢 занимает две UTF-16 единицы
	if entities[0].Offset != 25 || entities[0].Length != 5 || entities[0].User.ID != 10 {
		t.Errorf("first entity = %+v", entities[0])
	}
	if entities[1].Length != 4 || entities[1].User.ID != 12 {
		t.Errorf("second entity = %+v", entities[1])
	}
}
