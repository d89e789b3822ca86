package bot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/config"
	"rpg-chat-bot/internal/model"
)

type fakeQueue struct {
	mu      sync.Mutex
	batches []model.Batch
}

func (f *fakeQueue) Enqueue(item model.Batch) <-chan error {
	f.mu.Lock()
	f.batches = append(f.batches, item)
	f.mu.Unlock()

	done := make(chan error, 1)
	done <- nil
	close(done)
	return done
}

func (f *fakeQueue) events() []model.InboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.InboundEvent
	for _, b := range f.batches {
		out = append(out, b.Events...)
	}
	return out
}

func testConfig(whitelist ...int64) *config.Config {
	return &config.Config{
		Whitelist: config.WhitelistConfig{Chats: whitelist},
		Identity: config.IdentityConfig{
			UserSuffix:  "@user",
			AliasSuffix: "@alias",
			GroupSuffix: "@group",
		},
	}
}

func newTestBot(t *testing.T, cfg *config.Config) (*Bot, *tele.Bot, *fakeQueue) {
	t.Helper()
	tb, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)

	b := newBot(tb, cfg)
	q := &fakeQueue{}
	b.Attach(q)
	return b, tb, q
}

var (
	groupChat = &tele.Chat{ID: -100123, Type: tele.ChatSuperGroup}
	alice     = &tele.User{ID: 42, FirstName: "Alice", LastName: "Smith", Username: "alice"}
)

func TestAttach_TextMessage(t *testing.T) {
	_, tb, q := newTestBot(t, testConfig())

	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID:       7,
		Chat:     groupChat,
		Sender:   alice,
		Text:     "!pay @Bob 10",
		Unixtime: 1700000000,
		Entities: tele.Entities{{Type: tele.EntityMention, Offset: 5, Length: 4}},
	}})

	events := q.events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "-100123@group", ev.ConversationID)
	assert.Equal(t, "42@user", ev.SenderID)
	assert.Equal(t, "Alice Smith", ev.PushName)
	assert.Equal(t, model.KindText, ev.Kind)
	assert.Equal(t, "!pay @Bob 10", ev.Text)
	assert.Equal(t, []string{"bob@alias"}, ev.Mentions)
	assert.Equal(t, time.Unix(1700000000, 0), ev.ReceivedAt)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, model.DeliveryNotify, q.batches[0].Type)
	assert.NotEmpty(t, q.batches[0].RequestID)
}

func TestAttach_ReplyAndTextMention(t *testing.T) {
	_, tb, q := newTestBot(t, testConfig())

	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID:      8,
		Chat:    groupChat,
		Sender:  alice,
		Text:    "!bal Carol",
		ReplyTo: &tele.Message{Sender: &tele.User{ID: 99}},
		Entities: tele.Entities{
			{Type: tele.EntityTMention, Offset: 5, Length: 5, User: &tele.User{ID: 77}},
		},
	}})

	events := q.events()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"99@user", "77@user"}, events[0].Mentions)
}

func TestAttach_MediaAndEdited(t *testing.T) {
	_, tb, q := newTestBot(t, testConfig())

	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 1, Chat: groupChat, Sender: alice,
		Photo:   &tele.Photo{},
		Caption: "!profile",
	}})
	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 2, Chat: groupChat, Sender: alice,
		Sticker: &tele.Sticker{},
	}})
	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 3, Chat: groupChat, Sender: alice,
		Document: &tele.Document{FileName: "notes.pdf"},
	}})
	tb.ProcessUpdate(tele.Update{EditedMessage: &tele.Message{
		ID: 4, Chat: groupChat, Sender: alice,
		Text:     "fixed",
		LastEdit: 1700000100,
	}})

	events := q.events()
	require.Len(t, events, 4)

	assert.Equal(t, model.KindMedia, events[0].Kind)
	assert.Equal(t, "photo", events[0].MediaType)
	assert.Equal(t, "!profile", events[0].Text)

	assert.Equal(t, model.KindMedia, events[1].Kind)
	assert.Equal(t, "[sticker]", events[1].Text)

	assert.Equal(t, "notes.pdf", events[2].Text)

	assert.Equal(t, model.KindEdited, events[3].Kind)
	assert.Equal(t, "fixed", events[3].Text)
	assert.Equal(t, time.Unix(1700000100, 0), events[3].ReceivedAt)
}

func TestAttach_PrivateChatUsesUserForm(t *testing.T) {
	_, tb, q := newTestBot(t, testConfig(-1))

	tb.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 1, Chat: &tele.Chat{ID: 42, Type: tele.ChatPrivate}, Sender: alice, Text: "hi",
	}})

	events := q.events()
	require.Len(t, events, 1)
	assert.Equal(t, "42@user", events[0].ConversationID)
}

func TestWhitelistMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		whitelist := rapid.SliceOfNDistinct(rapid.Int64Range(-1000, -1), 0, 5, rapid.ID[int64]).Draw(t, "whitelist")
		chatID := rapid.Int64Range(-1000, -1).Draw(t, "chatID")

		tb, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
		if err != nil {
			t.Fatal(err)
		}
		cfg := testConfig(whitelist...)
		b := newBot(tb, cfg)
		q := &fakeQueue{}
		b.Attach(q)

		tb.ProcessUpdate(tele.Update{Message: &tele.Message{
			ID: 1, Chat: &tele.Chat{ID: chatID, Type: tele.ChatGroup}, Sender: alice, Text: "hello",
		}})

		passed := len(q.events()) == 1
		if passed != cfg.IsChatAllowed(chatID) {
			t.Fatalf("chat %d whitelist=%v: passed=%v", chatID, whitelist, passed)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	tb, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	tb.Use(RecoveryMiddleware())
	tb.Handle(tele.OnText, func(tele.Context) error { panic("boom") })

	assert.NotPanics(t, func() {
		tb.ProcessUpdate(tele.Update{Message: &tele.Message{Chat: groupChat, Sender: alice, Text: "x"}})
	})
}

func TestChatID(t *testing.T) {
	b, _, _ := newTestBot(t, testConfig())

	id, err := b.chatID("-100123@group")
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)

	id, err = b.chatID("42@user")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"bob@alias", "x@group", ""} {
		_, err := b.chatID(bad)
		assert.ErrorIs(t, err, ErrBadConversation, bad)
	}
}

func TestParticipants(t *testing.T) {
	b, _, _ := newTestBot(t, testConfig())

	got := b.participants([]tele.ChatMember{
		{User: &tele.User{ID: 1}, Role: tele.Creator},
		{User: &tele.User{ID: 2}, Role: tele.Administrator},
		{User: &tele.User{ID: 3}, Role: tele.Member},
		{Role: tele.Administrator},
	})
	assert.Equal(t, []command.Participant{
		{ID: "1@user", Role: command.RoleSuperAdmin},
		{ID: "2@user", Role: command.RoleAdmin},
		{ID: "3@user", Role: command.RoleMember},
	}, got)
}
