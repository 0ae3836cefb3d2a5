package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/metrics"
	"github.com/nkiryanov/numrent/internal/models"
)

const defaultRentHours = "4"

// SMSActivate speaks the handler_api.php protocol: plain text answers like "ACCESS_NUMBER:id:phone"
type SMSActivate struct {
	addr   string
	apiKey string

	client *http.Client
	logger logger.Logger
}

func NewSMSActivate(addr string, apiKey string, logger logger.Logger) *SMSActivate {
	return &SMSActivate{
		addr:   strings.TrimRight(addr, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *SMSActivate) CreateNumber(ctx context.Context, kind string, service string, country string) (Number, error) {
	if kind == models.OrderKindRental {
		return c.rentNumber(ctx, service, country)
	}

	body, err := c.call(ctx, "getNumber", url.Values{"service": {service}, "country": {country}})
	if err != nil {
		return Number{}, err
	}

	// ACCESS_NUMBER:$id:$phone
	parts := strings.Split(body, ":")
	if len(parts) != 3 || parts[0] != "ACCESS_NUMBER" {
		return Number{}, c.answerError(body)
	}

	return Number{Ref: parts[1], Phone: parts[2]}, nil
}

type smsActivateRent struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Phone   struct {
		ID     json.Number `json:"id"`
		Number string      `json:"number"`
	} `json:"phone"`
}

func (c *SMSActivate) rentNumber(ctx context.Context, service string, country string) (Number, error) {
	body, err := c.call(ctx, "getRentNumber", url.Values{"service": {service}, "country": {country}, "rent_time": {defaultRentHours}})
	if err != nil {
		return Number{}, err
	}

	var rent smsActivateRent
	if err := json.Unmarshal([]byte(body), &rent); err != nil {
		return Number{}, c.answerError(body)
	}
	if rent.Status != "success" {
		return Number{}, c.answerError(rent.Message)
	}

	return Number{Ref: rent.Phone.ID.String(), Phone: rent.Phone.Number}, nil
}

func (c *SMSActivate) PollStatus(ctx context.Context, ref string) (Poll, error) {
	body, err := c.call(ctx, "getStatus", url.Values{"id": {ref}})
	if err != nil {
		return Poll{}, err
	}

	switch {
	case body == "STATUS_WAIT_CODE", body == "STATUS_WAIT_RETRY", body == "STATUS_WAIT_RESEND":
		return Poll{Status: StatusWaiting}, nil
	case strings.HasPrefix(body, "STATUS_OK:"):
		return Poll{Status: StatusReceived, Code: strings.TrimPrefix(body, "STATUS_OK:")}, nil
	case body == "STATUS_CANCEL":
		return Poll{Status: StatusCancelled}, nil
	default:
		return Poll{}, c.answerError(body)
	}
}

func (c *SMSActivate) Cancel(ctx context.Context, ref string) error {
	body, err := c.call(ctx, "setStatus", url.Values{"id": {ref}, "status": {"8"}})
	if err != nil {
		return err
	}

	switch body {
	case "ACCESS_CANCEL", "ACCESS_CANCEL_ALREADY":
		return nil
	default:
		return c.answerError(body)
	}
}

func (c *SMSActivate) call(ctx context.Context, action string, params url.Values) (string, error) {
	params.Set("api_key", c.apiKey)
	params.Set("action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/stubs/handler_api.php?"+params.Encode(), nil)
	if err != nil {
		return "", NewError(TagSMSActivate, CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(string(TagSMSActivate), action, "transport").Inc()
		return "", NewError(TagSMSActivate, CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.ProviderRequests.WithLabelValues(string(TagSMSActivate), action, CodeRetryAfter).Inc()
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("Provider throttled", "provider", TagSMSActivate, "retry_after", retryAfter)
		return "", NewError(TagSMSActivate, CodeRetryAfter, retryAfter, fmt.Errorf("retry after %s", retryAfter))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewError(TagSMSActivate, CodeUnknown, 0, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues(string(TagSMSActivate), action, CodeUnknown).Inc()
		c.logger.Warn("Provider request failed", "provider", TagSMSActivate, "action", action, "status_code", resp.StatusCode)
		return "", NewError(TagSMSActivate, CodeUnknown, 0, fmt.Errorf("unknown status code %d", resp.StatusCode))
	}

	metrics.ProviderRequests.WithLabelValues(string(TagSMSActivate), action, "ok").Inc()
	return strings.TrimSpace(string(raw)), nil
}

func (c *SMSActivate) answerError(answer string) error {
	var code string
	switch answer {
	case "NO_NUMBERS":
		code = CodeNoNumbers
	case "BAD_KEY":
		code = CodeBadKey
	case "NO_BALANCE":
		code = CodeNoBalance
	default:
		code = CodeUnknown
	}

	return NewError(TagSMSActivate, code, 0, fmt.Errorf("provider answered %q", answer))
}
