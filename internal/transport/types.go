// Package transport abstracts the outbound delivery channel. The watcher only
// sends; there is no inbound update surface.
package transport

import "context"

// ChatTarget addresses a destination chat. ThreadID is the forum topic thread
// (0 if none).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the minimal send-side contract.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	Stop(ctx context.Context) error
}
