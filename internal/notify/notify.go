// Package notify delivers customer-facing messages (order confirmations,
// status updates, receipts) to an external broker. Delivery is best effort:
// callers log failures and move on.
package notify

import (
	"context"
	"log"
)

// Message is one outbound notification.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes notifications to the process log. Used when no broker is
// configured, and in tests.
type LogSink struct{}

func (LogSink) Send(_ context.Context, msg Message) error {
	log.Printf("NOTIFY: to=%s subject=%q", msg.To, msg.Subject)
	return nil
}
