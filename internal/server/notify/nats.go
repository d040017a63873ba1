// Package notify tells offline recipients about new messages by publishing
// to NATS. Delivery to devices is handled by a downstream consumer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"
)

// Notification is the payload published for every non-sender participant.
type Notification struct {
	RecipientID    string `json:"recipientId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	Preview        string `json:"preview"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type publisher interface {
	Publish(subject string, data []byte) error
}

type NATSNotifier struct {
	conn    publisher
	subject string
}

func NewNATSNotifier(conn publisher, subject string) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject}
}

var natsConnect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

// Connect dials the NATS server with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := natsConnect(url, nats.Name("carenest"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, msg Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Notification) error { return nil }
