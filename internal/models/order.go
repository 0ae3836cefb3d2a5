package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderKindActivation = "activation"
	OrderKindRental     = "rental"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusWaiting   = "waiting"
	OrderStatusActive    = "active"
	OrderStatusReceived  = "received"
	OrderStatusCompleted = "completed"
	OrderStatusTimeout   = "timeout"
	OrderStatusCancelled = "cancelled"
	OrderStatusFailed    = "failed"
)

// Statuses an order may still be settled from
var LiveOrderStatuses = []string{OrderStatusPending, OrderStatusWaiting, OrderStatusActive}

// Statuses the expiry sweeper is allowed to time out
var ExpirableOrderStatuses = []string{OrderStatusPending, OrderStatusWaiting}

type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Kind         string
	Provider     ProviderTag
	Service      string
	Country      string
	Price        decimal.Decimal
	FrozenAmount decimal.Decimal
	Status       string
	Charged      bool
	ProviderRef  *string // nil until provider accepts the order
	Phone        *string
	Code         *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (o Order) IsLive() bool {
	return slices.Contains(LiveOrderStatuses, o.Status)
}

// Status the order gets when its reservation is committed
func (o Order) CommittedStatus() string {
	if o.Kind == OrderKindRental {
		return OrderStatusCompleted
	}
	return OrderStatusReceived
}

// Status the order gets when the provider accepted it
func (o Order) AcceptedStatus() string {
	if o.Kind == OrderKindRental {
		return OrderStatusActive
	}
	return OrderStatusWaiting
}
