package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
)

// Tag selects the provider backend an order is dispatched to
type Tag = models.ProviderTag

const (
	TagSMSActivate = models.ProviderSMSActivate
	TagFiveSim     = models.ProviderFiveSim
)

func ParseTag(s string) (Tag, error) {
	return models.ParseProviderTag(s)
}

// Activation status as reported by the provider
const (
	StatusWaiting   = "waiting"   // number issued, no sms yet
	StatusReceived  = "received"  // sms code arrived
	StatusCancelled = "cancelled" // cancelled or expired on the provider side
)

type Number struct {
	Ref   string // provider order id
	Phone string
}

type Poll struct {
	Status string
	Code   string // set when status is received
}

type Client interface {
	// Buy number. kind is models.OrderKindActivation or models.OrderKindRental
	// Paid and irreversible on success. Must never be retried by the caller
	CreateNumber(ctx context.Context, kind string, service string, country string) (Number, error)

	PollStatus(ctx context.Context, ref string) (Poll, error)

	Cancel(ctx context.Context, ref string) error
}

const (
	CodeNoNumbers  = "no-numbers"
	CodeBadKey     = "bad-key"
	CodeNoBalance  = "no-balance"
	CodeRetryAfter = "retry-after"
	CodeUnknown    = "unknown"
)

type Error struct {
	Provider Tag
	Code     string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s, code: %s, retry_after: %s, error: %v", e.Provider, e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Every provider error matches apperrors.ErrProvider
func (e *Error) Is(target error) bool {
	return target == apperrors.ErrProvider
}

func NewError(provider Tag, code string, retryAfter time.Duration, err error) *Error {
	return &Error{
		Provider:   provider,
		Code:       code,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// Return retry after duration if err asks to slow down
func RetryAfter(err error) (time.Duration, bool) {
	var pErr *Error
	if errors.As(err, &pErr) && pErr.Code == CodeRetryAfter {
		return pErr.RetryAfter, true
	}
	return 0, false
}

// Registry holds one client per provider tag
type Registry struct {
	clients map[Tag]Client
}

func NewRegistry(clients map[Tag]Client) *Registry {
	return &Registry{clients: clients}
}

func (r *Registry) Get(tag Tag) (Client, error) {
	client, ok := r.clients[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", apperrors.ErrProviderUnknown, tag)
	}
	return client, nil
}

func (r *Registry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.clients))
	for _, t := range models.ProviderTags {
		if _, ok := r.clients[t]; ok {
			tags = append(tags, t)
		}
	}
	return tags
}
