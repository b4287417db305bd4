package clients

import "context"

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Message is the generic outbound message for any channel
type Message struct {
	Recipient string            // phone number or email address
	Subject   string            // email only
	Body      string            // message text
	Extra     map[string]string // channel specific fields
}

// Client is the interface for channel specific message senders
// Supports multiple providers: SMS gateways, SMTP, etc.
type Client interface {
	// Channel returns the channel name handled by this client
	Channel() string

	// Send delivers a message, the error is returned when the provider rejects it
	Send(ctx context.Context, msg *Message) error

	// Close releases provider connections
	Close() error
}
