package imessage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/delivery"
)

const (
	channel        = "imessage"
	defaultTimeout = 10 * time.Second
)

// Client sends messages through the iMessage bridge service.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
}

var _ delivery.MessageSender = (*Client)(nil)

func New(apiURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger:     logger,
		HTTPClient: &http.Client{Timeout: timeout},
		APIURL:     strings.TrimRight(apiURL, "/"),
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SendMessage delivers text to recipient. Any failure is reported as delivery.ErrSendFailed.
func (c *Client) SendMessage(ctx context.Context, recipient, text string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return delivery.Failure(channel, errors.New("recipient is required"))
	}

	payload, err := json.Marshal(sendRequest{Recipient: recipient, Message: text})
	if err != nil {
		return delivery.Failure(channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return delivery.Failure(channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("send imessage", zap.String("recipient", recipient), zap.Int("length", len(text)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return delivery.Failure(channel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery.Failure(channel, err)
	}

	var result sendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode >= 300 {
			return delivery.Failure(channel, fmt.Errorf("bridge returned status %d", resp.StatusCode))
		}
		return delivery.Failure(channel, fmt.Errorf("decode bridge response: %w", err))
	}

	if !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = fmt.Sprintf("bridge returned status %d", resp.StatusCode)
		}
		return delivery.Failure(channel, &delivery.ProviderError{Message: msg})
	}

	c.logger.Info("imessage sent", zap.String("recipient", recipient))
	return nil
}

// Health reports whether the bridge answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("imessage bridge health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("imessage bridge health: status %d", resp.StatusCode)
	}
	return nil
}
