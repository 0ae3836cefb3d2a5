package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/models"
)

const TopicOrderSettled = "order.settled"

// OrderSettled is published once per terminal order transition
type OrderSettled struct {
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Kind      string          `json:"kind"`
	Provider  string          `json:"provider"`
	Status    string          `json:"status"`
	Charged   bool            `json:"charged"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	SettledAt time.Time       `json:"settled_at"`
}

func NewOrderSettled(order models.Order, entry models.LedgerEntry) OrderSettled {
	return OrderSettled{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Kind:      order.Kind,
		Provider:  string(order.Provider),
		Status:    order.Status,
		Charged:   order.Charged,
		Amount:    entry.Amount,
		Reason:    entry.Reason,
		SettledAt: entry.CreatedAt,
	}
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  TopicOrderSettled,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// Messages of one order go to the same partition
func (p *Publisher) PublishOrderSettled(ctx context.Context, event OrderSettled) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NoOpPublisher is used when no brokers configured
type NoOpPublisher struct{}

func (NoOpPublisher) PublishOrderSettled(context.Context, OrderSettled) error { return nil }

func (NoOpPublisher) Close() error { return nil }
