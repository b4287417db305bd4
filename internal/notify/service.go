package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/notify/clients"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
)

// Result of a single send
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Messenger is what the business services depend on
type Messenger interface {
	Send(ctx context.Context, recipient, body string) Result
}

// ChannelFor routes addresses with an @ to email and everything else to sms
func ChannelFor(recipient string) string {
	if strings.Contains(recipient, "@") {
		return clients.ChannelEmail
	}
	return clients.ChannelSMS
}

// Service dispatches messages to the configured channel clients and
// records every attempt. Sends are never retried.
type Service struct {
	clients map[string]clients.Client
	logRepo MessageLogRepository
}

var _ Messenger = (*Service)(nil)

func NewService(logRepo MessageLogRepository, cs ...clients.Client) *Service {
	s := &Service{
		clients: make(map[string]clients.Client),
		logRepo: logRepo,
	}
	for _, c := range cs {
		if c != nil {
			s.clients[c.Channel()] = c
		}
	}
	return s
}

func (s *Service) Send(ctx context.Context, recipient, body string) Result {
	return s.SendWithReference(ctx, recipient, body, "")
}

// SendWithReference sends and tags the log entry with reference
func (s *Service) SendWithReference(ctx context.Context, recipient, body, reference string) Result {
	recipient = strings.TrimSpace(recipient)
	channel := ChannelFor(recipient)

	var err error
	client, ok := s.clients[channel]
	switch {
	case recipient == "":
		err = fmt.Errorf("recipient is required")
	case !ok:
		err = fmt.Errorf("no %s client configured", channel)
	default:
		err = client.Send(ctx, &clients.Message{Recipient: recipient, Body: body})
	}

	s.logSend(ctx, channel, recipient, body, reference, err)

	if err != nil {
		zap.L().Warn("message send failed",
			zap.String("namespace", "notify"),
			zap.String("channel", channel),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true}
}

func (s *Service) logSend(ctx context.Context, channel, recipient, body, reference string, sendErr error) {
	if s.logRepo == nil {
		return
	}
	log := &domain.MessageLog{
		ID:         common.UUIDint64(),
		Channel:    channel,
		Recipient:  recipient,
		Body:       body,
		Reference:  reference,
		Status:     "success",
		ExecutedAt: time.Now(),
	}
	if sendErr != nil {
		log.Status = "failure"
		log.ErrorMsg = sendErr.Error()
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		zap.L().Warn("failed to create message log", zap.Error(err))
	}
}

// Close closes all channel clients
func (s *Service) Close() {
	for channel, c := range s.clients {
		if err := c.Close(); err != nil {
			zap.L().Warn("error closing message client",
				zap.String("channel", channel),
				zap.Error(err),
			)
		}
	}
}
