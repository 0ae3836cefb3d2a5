package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/metrics"
	"github.com/nkiryanov/numrent/internal/models"
)

const fiveSimOperator = "any"

// FiveSim speaks the JSON REST protocol with bearer key
type FiveSim struct {
	addr   string
	apiKey string

	client *http.Client
	logger logger.Logger
}

func NewFiveSim(addr string, apiKey string, logger logger.Logger) *FiveSim {
	return &FiveSim{
		addr:   strings.TrimRight(addr, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type fiveSimOrder struct {
	ID     int64  `json:"id"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
	SMS    []struct {
		Code string `json:"code"`
	} `json:"sms"`
}

func (c *FiveSim) CreateNumber(ctx context.Context, kind string, service string, country string) (Number, error) {
	category := "activation"
	if kind == models.OrderKindRental {
		category = "hosting"
	}

	var order fiveSimOrder
	path := fmt.Sprintf("/v1/user/buy/%s/%s/%s/%s", category, country, fiveSimOperator, service)
	if err := c.call(ctx, "buy", path, &order); err != nil {
		return Number{}, err
	}

	return Number{Ref: strconv.FormatInt(order.ID, 10), Phone: order.Phone}, nil
}

func (c *FiveSim) PollStatus(ctx context.Context, ref string) (Poll, error) {
	var order fiveSimOrder
	if err := c.call(ctx, "check", "/v1/user/check/"+ref, &order); err != nil {
		return Poll{}, err
	}

	switch order.Status {
	case "PENDING":
		return Poll{Status: StatusWaiting}, nil
	case "RECEIVED", "FINISHED":
		if len(order.SMS) == 0 {
			return Poll{Status: StatusWaiting}, nil
		}
		return Poll{Status: StatusReceived, Code: order.SMS[len(order.SMS)-1].Code}, nil
	case "CANCELED", "TIMEOUT", "BANNED":
		return Poll{Status: StatusCancelled}, nil
	default:
		return Poll{}, NewError(TagFiveSim, CodeUnknown, 0, fmt.Errorf("unknown order status %q", order.Status))
	}
}

func (c *FiveSim) Cancel(ctx context.Context, ref string) error {
	var order fiveSimOrder
	return c.call(ctx, "cancel", "/v1/user/cancel/"+ref, &order)
}

func (c *FiveSim) call(ctx context.Context, method string, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+path, nil)
	if err != nil {
		return NewError(TagFiveSim, CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(string(TagFiveSim), method, "transport").Inc()
		return NewError(TagFiveSim, CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		metrics.ProviderRequests.WithLabelValues(string(TagFiveSim), method, "ok").Inc()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode response", "provider", TagFiveSim, "error", err)
			return NewError(TagFiveSim, CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil

	case http.StatusUnauthorized:
		metrics.ProviderRequests.WithLabelValues(string(TagFiveSim), method, CodeBadKey).Inc()
		return NewError(TagFiveSim, CodeBadKey, 0, errors.New("unauthorized"))

	case http.StatusTooManyRequests:
		metrics.ProviderRequests.WithLabelValues(string(TagFiveSim), method, CodeRetryAfter).Inc()
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("Provider throttled", "provider", TagFiveSim, "retry_after", retryAfter)
		return NewError(TagFiveSim, CodeRetryAfter, retryAfter, fmt.Errorf("retry after %s", retryAfter))

	default:
		// Business errors come as plain text with 400
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		answer := strings.TrimSpace(string(raw))

		code := CodeUnknown
		switch answer {
		case "no free phones":
			code = CodeNoNumbers
		case "not enough user balance":
			code = CodeNoBalance
		}

		metrics.ProviderRequests.WithLabelValues(string(TagFiveSim), method, code).Inc()
		c.logger.Warn("Provider request failed", "provider", TagFiveSim, "status_code", resp.StatusCode, "answer", answer)
		return NewError(TagFiveSim, code, 0, fmt.Errorf("status code %d, answer %q", resp.StatusCode, answer))
	}
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		seconds = 60 // default to 60 seconds if parsing fails
	}
	return time.Duration(seconds) * time.Second
}
