package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"gift-marketplace/internal/models"
)

type Producer struct {
	orderPaid    *kafka.Writer
	inboundEmail *kafka.Writer
}

func NewProducer(brokers []string, orderPaidTopic, inboundEmailTopic string) *Producer {
	return &Producer{
		orderPaid: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   orderPaidTopic,
		}),
		inboundEmail: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   inboundEmailTopic,
		}),
	}
}

// OrderPaidEvent is consumed by the vendor-payout and email services.
type OrderPaidEvent struct {
	OrderID   string    `json:"order_id"`
	OrderCode string    `json:"order_code"`
	Total     float64   `json:"total"`
	Currency  string    `json:"currency"`
	PromoCode string    `json:"promo_code,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

// RegistryGiftEvent notifies a registry owner that someone bought off their list.
type RegistryGiftEvent struct {
	OwnerUserID    string `json:"owner_user_id"`
	RegistryID     string `json:"registry_id"`
	RegistryItemID string `json:"registry_item_id"`
	ProductID      string `json:"product_id"`
	OrderCode      string `json:"order_code"`
	Quantity       int    `json:"quantity"`
}

// PublishOrderPaid streams the paid transition to the order-paid topic.
func (p *Producer) PublishOrderPaid(ord models.Order) error {
	event := OrderPaidEvent{
		OrderID:   ord.ID,
		OrderCode: ord.OrderCode,
		Total:     ord.Total,
		Currency:  ord.Currency,
		PromoCode: ord.PromoCode,
		PaidAt:    time.Now().UTC(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.orderPaid.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ord.ID),
			Value: msgBytes,
		},
	)
}

// PublishRegistryGiftPurchased streams a registry-owner notification after the
// first paid flip of an order containing the registry item.
func (p *Producer) PublishRegistryGiftPurchased(item models.RegistryItem, ord models.Order, quantity int) error {
	event := RegistryGiftEvent{
		OwnerUserID:    item.OwnerUserID,
		RegistryID:     item.RegistryID,
		RegistryItemID: item.ID,
		ProductID:      item.ProductID,
		OrderCode:      ord.OrderCode,
		Quantity:       quantity,
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.orderPaid.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(item.OwnerUserID),
			Value: msgBytes,
		},
	)
}

// PublishInboundEmail fans a normalized inbound email out to downstream
// consumers (support inbox, vendor reply threading).
func (p *Producer) PublishInboundEmail(key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.inboundEmail.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.orderPaid.Close(); err != nil {
		return err
	}
	return p.inboundEmail.Close()
}
