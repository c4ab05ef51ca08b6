package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is the payload handed to the notifier pipeline.
//
// Channel tags the origin category of the message ("plugin" for plugin-generated
// pushes). Target may be zero, in which case the notifier resolves the configured
// default push chat.
type Notification struct {
	Channel  string
	Priority int // 0 low .. 10 high
	Target   ChatTarget
	Title    string
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
