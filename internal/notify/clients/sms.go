package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"go.uber.org/zap"
)

// SmsGatewayClient implements Client for HTTP JSON SMS gateways
type SmsGatewayClient struct {
	endpoint string
	token    string
	sender   string
	timeout  time.Duration
}

type smsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// NewSmsGatewayClient creates a gateway client
// Parameters:
//   - endpoint: full URL of the gateway send API
//   - token: bearer token, optional
//   - sender: sender id shown to recipients
func NewSmsGatewayClient(endpoint, token, sender string) (*SmsGatewayClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("sms gateway endpoint is required")
	}
	return &SmsGatewayClient{
		endpoint: endpoint,
		token:    token,
		sender:   sender,
		timeout:  10 * time.Second,
	}, nil
}

func (c *SmsGatewayClient) Channel() string {
	return ChannelSMS
}

// Send posts {"to","from","text"} to the gateway
func (c *SmsGatewayClient) Send(ctx context.Context, msg *Message) error {
	if msg == nil || strings.TrimSpace(msg.Recipient) == "" {
		return fmt.Errorf("sms recipient is required")
	}

	var resp smsResponse
	var code int
	req := gout.POST(c.endpoint).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetJSON(gout.H{
			"to":   msg.Recipient,
			"from": c.sender,
			"text": msg.Body,
		})
	if c.token != "" {
		req = req.SetHeader(gout.H{"Authorization": "Bearer " + c.token})
	}
	err := req.BindJSON(&resp).Code(&code).Do()
	if err != nil {
		zap.L().Warn("sms gateway request failed",
			zap.String("namespace", "notify"),
			zap.String("recipient", msg.Recipient),
			zap.Error(err),
		)
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	if code != http.StatusOK || !resp.Success {
		return fmt.Errorf("sms gateway rejected message: status=%d message=%s", code, resp.Message)
	}
	return nil
}

func (c *SmsGatewayClient) Close() error {
	return nil
}
