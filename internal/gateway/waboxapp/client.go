// Package waboxapp is the outbound adapter for the WhatsApp gateway.
package waboxapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/pkg/config"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/resilience"
)

// SendResult is the outcome of one gateway call.
// Transport and gateway failures are reported here, never as errors.
type SendResult struct {
	Success  bool
	RemoteID string
	Error    string
}

// Client posts send requests to {endpoint}/send/{chat|image|media}
type Client struct {
	endpoint   string
	uid        string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a gateway client with a per-call timeout
func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		uid:        cfg.UID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.NewBreaker("gateway", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

type sendResponse struct {
	Success   bool   `json:"success"`
	CustomUID string `json:"custom_uid"`
	Error     string `json:"error"`
}

// SendText delivers a chat message. messageID is the idempotency key (custom_uid).
func (c *Client) SendText(ctx context.Context, phone, messageID, text string) SendResult {
	return c.send(ctx, "chat", "text", phone, messageID, url.Values{"text": {text}})
}

// SendImage delivers an image by URL
func (c *Client) SendImage(ctx context.Context, phone, messageID, mediaURL string) SendResult {
	return c.send(ctx, "image", "image", phone, messageID, url.Values{"url": {mediaURL}})
}

// SendFile delivers a document, video or audio file by URL
func (c *Client) SendFile(ctx context.Context, phone, messageID, mediaURL string) SendResult {
	return c.send(ctx, "media", "file", phone, messageID, url.Values{"url": {mediaURL}})
}

func (c *Client) send(ctx context.Context, path, kind, phone, messageID string, params url.Values) SendResult {
	var result SendResult
	if err := c.breaker.Allow(); err != nil {
		result = SendResult{Error: fmt.Sprintf("gateway unavailable: %v", err)}
	} else {
		start := time.Now()
		var transient bool
		result, transient = c.do(ctx, path, phone, messageID, params)
		metrics.GatewaySendDuration.Observe(time.Since(start).Seconds())
		if transient {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}
	}

	if result.Success {
		metrics.GatewaySendTotal.WithLabelValues(kind, "sent").Inc()
	} else {
		metrics.GatewaySendTotal.WithLabelValues(kind, "failed").Inc()
		logger.FromContext(ctx).Warn("Gateway send failed",
			zap.String("message_id", messageID),
			zap.String("kind", kind),
			zap.String("error", result.Error))
	}
	return result
}

// do reports transient=true for failures that say nothing about the message itself
func (c *Client) do(ctx context.Context, path, phone, messageID string, params url.Values) (result SendResult, transient bool) {
	params.Set("uid", c.uid)
	params.Set("token", c.token)
	params.Set("to", strings.TrimPrefix(phone, "+"))
	params.Set("custom_uid", messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/send/"+path+"?"+params.Encode(), nil)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("build request: %v", err)}, false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("gateway unreachable: %v", err)}, true
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return SendResult{Error: fmt.Sprintf("read response: %v", err)}, true
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return SendResult{Error: fmt.Sprintf("gateway returned %d with unreadable body", resp.StatusCode)}, resp.StatusCode >= http.StatusInternalServerError
	}
	if resp.StatusCode >= http.StatusBadRequest || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("gateway rejected message (status %d)", resp.StatusCode)
		}
		return SendResult{Error: msg}, resp.StatusCode >= http.StatusInternalServerError
	}

	return SendResult{Success: true, RemoteID: out.CustomUID}, false
}
