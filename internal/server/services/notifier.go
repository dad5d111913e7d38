package services

import (
	"context"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/logging"
	"github.com/dascribs/authcore/internal/server/metrics"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/dascribs/authcore/internal/timex"
	"github.com/google/uuid"
)

// Notifier turns flow outcomes into dispatcher messages. Sends happen after
// the owning transaction committed; a failed send is logged and never
// reported to the caller.
type Notifier struct {
	dispatcher notify.Dispatcher
	links      notify.Links
	clock      timex.Clock
	log        logging.Logger
	metrics    *metrics.Collectors
}

// NewNotifier constructs a Notifier that renders messages with links and sends them through d.
func NewNotifier(d notify.Dispatcher, links notify.Links, clock timex.Clock, log logging.Logger, m *metrics.Collectors) *Notifier {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Notifier{dispatcher: d, links: links, clock: clock, log: log.With("module", "notifier"), metrics: m}
}

// Send delivers one message. token may be empty for plain notices.
func (n *Notifier) Send(ctx context.Context, to string, kind notify.Kind, name, token string) {
	msg := notify.Message{
		ID:            uuid.NewString(),
		To:            to,
		Kind:          kind,
		PrincipalName: name,
		CreatedAt:     n.clock.Now(),
	}
	if token != "" {
		msg.Token = token
		msg.Link = n.links.For(kind, token)
	}

	if err := n.dispatcher.Send(ctx, msg); err != nil {
		n.metrics.Message(string(kind), "error")
		n.log.Warn(ctx, "message dispatch failed",
			"kind", kind, "message_id", msg.ID, "token", common.TokenPrefix(token), "error", err)
		return
	}
	n.metrics.Message(string(kind), "sent")
}
