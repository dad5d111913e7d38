package notify

import (
	"context"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/logging"
)

// LogDispatcher writes a line per message instead of delivering it.
// Intended for development; the token is logged only as a prefix.
type LogDispatcher struct {
	log logging.Logger
}

// NewLogDispatcher constructs a LogDispatcher that writes messages to log.
func NewLogDispatcher(log logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	d.log.Info(ctx, "message dispatched",
		"id", msg.ID, "to", msg.To, "kind", string(msg.Kind), "token", common.TokenPrefix(msg.Token))
	return nil
}

func (d *LogDispatcher) Close() error { return nil }
