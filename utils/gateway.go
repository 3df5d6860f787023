package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Normalized send failure reasons used for report bucketing.
const (
	ReasonTimeout        = "timeout"
	ReasonInvalidNumber  = "invalid_number"
	ReasonGatewayError   = "gateway_error"
	ReasonQuotaExhausted = "quota_exhausted"
	ReasonUnknown        = "unknown"
)

// NormalizeReason maps an arbitrary failure reason onto one of the
// known report buckets.
func NormalizeReason(reason string) string {
	switch reason {
	case ReasonTimeout, ReasonInvalidNumber, ReasonGatewayError, ReasonQuotaExhausted:
		return reason
	default:
		return ReasonUnknown
	}
}

// SendRequest is one outbound message handed to the gateway. The
// idempotency key is stable per (campaign, contact) so a retried
// delivery after a crash cannot double-send.
type SendRequest struct {
	InboxID        string `json:"inbox_id"`
	Phone          string `json:"number"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SendResult is the gateway acknowledgement of an accepted message.
type SendResult struct {
	MessageID string `json:"message_id"`
}

// SendError is a failed delivery attempt with a normalized reason.
type SendError struct {
	Reason  string
	Message string
}

func (e *SendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("send failed (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("send failed (%s)", e.Reason)
}

// SendFailure extracts the normalized reason and message from a send
// error of any shape.
func SendFailure(err error) (reason, message string) {
	var se *SendError
	if errors.As(err, &se) {
		return NormalizeReason(se.Reason), se.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, err.Error()
	}
	return ReasonUnknown, err.Error()
}

// MessageGateway performs the actual delivery. Implementations must
// tolerate at most one invocation per contact per dispatch pass.
type MessageGateway interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// WhatsAppGateway talks to the WhatsApp gateway service over HTTP.
// Every call carries a bounded timeout; a hanging gateway resolves as a
// per-contact timeout failure, never a stuck worker.
type WhatsAppGateway struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *fasthttp.Client
	Logger  *logrus.Entry
}

func NewWhatsAppGateway(baseURL, apiKey string, timeout time.Duration, logger *logrus.Entry) *WhatsAppGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhatsAppGateway{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: timeout,
		Client: &fasthttp.Client{
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		Logger: logger,
	}
}

type gatewayErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (g *WhatsAppGateway) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &SendError{Reason: ReasonUnknown, Message: err.Error()}
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(g.BaseURL + "/api/v1/messages/send")
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}
	httpReq.SetBody(body)

	timeout := g.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, &SendError{Reason: ReasonTimeout, Message: "context deadline exceeded"}
	}

	if err := g.Client.DoTimeout(httpReq, httpResp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, &SendError{Reason: ReasonTimeout, Message: err.Error()}
		}
		return nil, &SendError{Reason: ReasonGatewayError, Message: err.Error()}
	}

	status := httpResp.StatusCode()
	switch {
	case status == fasthttp.StatusOK || status == fasthttp.StatusCreated:
		var result SendResult
		if err := json.Unmarshal(httpResp.Body(), &result); err != nil {
			return nil, &SendError{Reason: ReasonGatewayError, Message: "malformed gateway response"}
		}
		return &result, nil

	case status == fasthttp.StatusTooManyRequests:
		return nil, &SendError{Reason: ReasonQuotaExhausted, Message: "gateway rate limit exceeded"}

	case status >= 400 && status < 500:
		var errBody gatewayErrorBody
		_ = json.Unmarshal(httpResp.Body(), &errBody)
		reason := NormalizeReason(errBody.Reason)
		if reason == ReasonUnknown {
			reason = ReasonGatewayError
		}
		return nil, &SendError{Reason: reason, Message: errBody.Error}

	default:
		g.Logger.WithField("status", status).Warn("Gateway returned server error")
		return nil, &SendError{Reason: ReasonGatewayError, Message: fmt.Sprintf("gateway returned status %d", status)}
	}
}
