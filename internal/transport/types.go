package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is the adapter-neutral view of an inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	// Text is the message text with mentions of the bot itself removed.
	Text    string
	IsGroup bool

	// SelfID is the bot's own account id as reported by the adapter.
	SelfID string
	// Mentions lists mention targets in message order.
	Mentions []Mention
}

// Mention is a structurally typed mention record. Adapters populate whichever
// field their platform uses for the mention target; the others stay nil.
//
//	OneBot "at" segment     -> QQ
//	Telegram text_mention   -> UserID
//	Telegram @bot mention   -> ID
//	Telegram other @name    -> Target
type Mention struct {
	QQ       any
	Target   any
	UserID   any
	TargetID any
	ID       any
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
	// Group selects group delivery on platforms that address groups and users
	// through different APIs (OneBot). Telegram ignores it.
	Group bool
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// TargetOf returns the reply target for m.
func TargetOf(m *Message) ChatTarget {
	if m == nil {
		return ChatTarget{}
	}
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID, Group: m.IsGroup}
}
