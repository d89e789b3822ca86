// Package bot adapts the Telegram client to the message pipeline: it turns
// updates into inbound events and implements the transport collaborators
// of the command layer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/config"
	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/model"
)

// ErrBadConversation is returned for conversation ids the transport cannot
// address.
var ErrBadConversation = errors.New("unsupported conversation id")

// Enqueuer accepts batches for processing. *queue.Queue[model.Batch]
// implements it.
type Enqueuer interface {
	Enqueue(item model.Batch) <-chan error
}

// Bot wraps the telebot instance.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	scheme identity.Scheme
	queue  Enqueuer
}

// New creates a new Bot. Updates are only consumed after Attach.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Bot.PollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newBot(teleBot, cfg), nil
}

func newBot(teleBot *tele.Bot, cfg *config.Config) *Bot {
	b := &Bot{
		bot:    teleBot,
		cfg:    cfg,
		scheme: schemeOf(cfg),
	}
	b.registerMiddleware()
	return b
}

func schemeOf(cfg *config.Config) identity.Scheme {
	return identity.Scheme{
		UserSuffix:  cfg.Identity.UserSuffix,
		AliasSuffix: cfg.Identity.AliasSuffix,
		GroupSuffix: cfg.Identity.GroupSuffix,
	}
}

// Scheme returns the identifier scheme the bot formats ids with.
func (b *Bot) Scheme() identity.Scheme {
	return b.scheme
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// Attach routes message updates into q.
func (b *Bot) Attach(q Enqueuer) {
	b.queue = q
	b.bot.Handle(tele.OnText, b.handleMessage)
	b.bot.Handle(tele.OnMedia, b.handleMessage)
	b.bot.Handle(tele.OnEdited, b.handleEdited)
}

func (b *Bot) handleMessage(c tele.Context) error {
	msg := c.Message()
	if msg == nil {
		return nil
	}
	b.push(b.toEvent(msg, false))
	return nil
}

func (b *Bot) handleEdited(c tele.Context) error {
	msg := c.Message()
	if msg == nil {
		return nil
	}
	b.push(b.toEvent(msg, true))
	return nil
}

// push enqueues a one-event batch and logs its outcome once processed.
func (b *Bot) push(ev model.InboundEvent) {
	if b.queue == nil {
		return
	}
	batch := model.Batch{
		RequestID: uuid.NewString(),
		Type:      model.DeliveryNotify,
		Events:    []model.InboundEvent{ev},
	}
	done := b.queue.Enqueue(batch)

	go func() {
		if err := <-done; err != nil {
			log.Error().
				Err(err).
				Str("request_id", batch.RequestID).
				Str("conversation", ev.ConversationID).
				Msg("Failed to process batch")
		}
	}()
}

// toEvent classifies a message into an inbound event.
func (b *Bot) toEvent(msg *tele.Message, edited bool) model.InboundEvent {
	ev := model.InboundEvent{
		ID:             strconv.Itoa(msg.ID),
		ConversationID: b.conversationID(msg.Chat),
		ReceivedAt:     msg.Time(),
	}

	if msg.Sender != nil {
		ev.SenderID = b.userID(msg.Sender.ID)
		ev.PushName = displayName(msg.Sender)
	}

	switch media := msg.Media(); {
	case edited:
		ev.Kind = model.KindEdited
		ev.Text = firstNonEmpty(msg.Text, msg.Caption)
		if msg.LastEdit > 0 {
			ev.ReceivedAt = msg.LastEdited()
		}
	case msg.Text != "":
		ev.Kind = model.KindText
		ev.Text = msg.Text
	case media != nil:
		ev.Kind = model.KindMedia
		ev.MediaType = media.MediaType()
		ev.Text = mediaText(msg)
	default:
		ev.Kind = model.KindUnknown
	}

	ev.Mentions = b.mentions(msg)
	return ev
}

func mediaText(msg *tele.Message) string {
	switch {
	case msg.Caption != "":
		return msg.Caption
	case msg.Document != nil && msg.Document.FileName != "":
		return msg.Document.FileName
	case msg.Sticker != nil:
		return "[sticker]"
	}
	return ""
}

// mentions lists the replied-to sender first, then every mentioned user.
func (b *Bot) mentions(msg *tele.Message) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil {
		add(b.userID(msg.ReplyTo.Sender.ID))
	}

	entities := msg.Entities
	if msg.Text == "" {
		entities = msg.CaptionEntities
	}
	for _, e := range entities {
		switch e.Type {
		case tele.EntityTMention:
			if e.User != nil {
				add(b.userID(e.User.ID))
			}
		case tele.EntityMention:
			if handle := strings.TrimPrefix(msg.EntityText(e), "@"); handle != "" {
				add(strings.ToLower(handle) + b.scheme.AliasSuffix)
			}
		}
	}
	return out
}

func (b *Bot) userID(id int64) string {
	return strconv.FormatInt(id, 10) + b.scheme.UserSuffix
}

func (b *Bot) conversationID(chat *tele.Chat) string {
	if chat == nil {
		return ""
	}
	if chat.Type == tele.ChatPrivate {
		return b.userID(chat.ID)
	}
	return strconv.FormatInt(chat.ID, 10) + b.scheme.GroupSuffix
}

// chatID parses a conversation id produced by conversationID.
func (b *Bot) chatID(conversationID string) (int64, error) {
	local, ok := strings.CutSuffix(conversationID, b.scheme.GroupSuffix)
	if !ok {
		local, ok = strings.CutSuffix(conversationID, b.scheme.UserSuffix)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBadConversation, conversationID)
	}
	id, err := strconv.ParseInt(local, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadConversation, conversationID)
	}
	return id, nil
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SendText sends a plain text message to a conversation.
func (b *Bot) SendText(_ context.Context, conversationID, text string) error {
	id, err := b.chatID(conversationID)
	if err != nil {
		return err
	}
	if _, err := b.bot.Send(tele.ChatID(id), text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ResolveAlias maps "<username><alias suffix>" to the user's canonical id.
func (b *Bot) ResolveAlias(_ context.Context, alias string) (string, error) {
	handle, ok := strings.CutSuffix(alias, b.scheme.AliasSuffix)
	if !ok || handle == "" {
		return "", identity.ErrAliasUnresolved
	}
	chat, err := b.bot.ChatByUsername("@" + handle)
	if err != nil {
		return "", fmt.Errorf("failed to resolve @%s: %w", handle, err)
	}
	if chat.Type != tele.ChatPrivate {
		return "", identity.ErrAliasUnresolved
	}
	return b.userID(chat.ID), nil
}

// FetchParticipants lists the administrators of a conversation. Members
// without a role are not reported.
func (b *Bot) FetchParticipants(_ context.Context, conversationID string) ([]command.Participant, error) {
	id, err := b.chatID(conversationID)
	if err != nil {
		return nil, err
	}
	admins, err := b.bot.AdminsOf(&tele.Chat{ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch admins: %w", err)
	}
	return b.participants(admins), nil
}

func (b *Bot) participants(members []tele.ChatMember) []command.Participant {
	out := make([]command.Participant, 0, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		role := command.RoleMember
		switch m.Role {
		case tele.Creator:
			role = command.RoleSuperAdmin
		case tele.Administrator:
			role = command.RoleAdmin
		}
		out = append(out, command.Participant{ID: b.userID(m.User.ID), Role: role})
	}
	return out
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Run polls until ctx is done, then stops the bot.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.Start()
	return nil
}

// Stop stops the bot gracefully. It must be called at most once, after
// Start.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
