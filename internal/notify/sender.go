// Package notify turns state changes into chat messages and delivers them.
package notify

import (
	"context"

	"github.com/projecteru2/core/log"
)

// Sender hides the destination so the monitor does not care where messages go.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Validate() error
}

// LogSender writes messages to the log instead of a chat service.
type LogSender struct{}

func (LogSender) Validate() error { return nil }

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger := log.WithFunc("notify.LogSender")
	logger.Infof(ctx, "[dry-run] %s (color #%06X) %q", msg.Title, msg.Color, msg.Description)
	for _, f := range msg.Fields {
		logger.Debugf(ctx, "[dry-run]   %s: %s", f.Name, f.Value)
	}
	return nil
}
