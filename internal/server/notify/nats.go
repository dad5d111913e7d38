package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
)

// jsPublisher is the part of nats.JetStreamContext the dispatcher uses.
type jsPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSDispatcher publishes messages to a JetStream subject. The message ID is
// used as the JetStream dedup key so a retried publish is delivered once.
type NATSDispatcher struct {
	conn    *nats.Conn
	js      jsPublisher
	subject string
}

// ConnectNATS connects to url and makes sure a stream captures subject.
func ConnectNATS(url, subject string, opts ...nats.Option) (*NATSDispatcher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	stream := streamName(subject)
	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, err
		}
		if _, err := js.AddStream(&nats.StreamConfig{Name: stream, Subjects: []string{subject}}); err != nil {
			nc.Close()
			return nil, err
		}
	}
	return &NATSDispatcher{conn: nc, js: js, subject: subject}, nil
}

func (d *NATSDispatcher) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = d.js.Publish(d.subject, data, nats.Context(ctx), nats.MsgId(msg.ID))
	return err
}

func (d *NATSDispatcher) Close() error {
	if d.conn == nil {
		return nil
	}
	if err := d.conn.Drain(); err != nil {
		d.conn.Close()
	}
	return nil
}

// streamName derives a valid stream name from a subject ("authcore.messages" → "AUTHCORE_MESSAGES").
func streamName(subject string) string {
	b := []byte(subject)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
