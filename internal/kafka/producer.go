package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-grounds/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
	Topics Topics
}

type Topics struct {
	ReservationConfirmed string
	ReservationCancelled string
	PaymentCompleted     string
}

func NewProducer(brokers []string, topics Topics) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

// Publish writes one message to the given topic.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

// PublishReservationConfirmed streams the confirmation event to Kafka.
func (p *Producer) PublishReservationConfirmed(res *models.Reservation) error {
	event := models.ReservationEvent{
		Type:          "reservation.confirmed",
		ReservationID: res.ReservationID,
		Reservation:   res,
		Timestamp:     time.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.ReservationConfirmed, res.ReservationID, value)
}

// PublishReservationCancelled streams the cancellation event to Kafka.
func (p *Producer) PublishReservationCancelled(res *models.Reservation) error {
	event := models.ReservationEvent{
		Type:          "reservation.cancelled",
		ReservationID: res.ReservationID,
		Reservation:   res,
		Timestamp:     time.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.ReservationCancelled, res.ReservationID, value)
}

// PublishPaymentCompleted streams the closing payment event to Kafka.
func (p *Producer) PublishPaymentCompleted(rec *models.PaymentRecord) error {
	event := models.PaymentEvent{
		Type:          "payment.completed",
		PaymentID:     rec.PaymentID,
		ReservationID: rec.ReservationID,
		Payment:       rec,
		Timestamp:     time.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.PaymentCompleted, rec.PaymentID, value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
