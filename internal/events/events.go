// Package events publishes appointment lifecycle events for downstream
// consumers (audit, analytics). Publishing is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID string    `json:"appointmentId"`
	DoctorID      string    `json:"doctorId"`
	PatientID     string    `json:"patientId"`
	Status        string    `json:"status"`
	Actor         string    `json:"actor"`
	At            time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt AppointmentEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, AppointmentEvent) error { return nil }
func (Nop) Close() error                                    { return nil }

// Kafka writes events to a topic keyed by appointment id so every event of
// one appointment lands on the same partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})}
}

func (k *Kafka) Publish(ctx context.Context, evt AppointmentEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.AppointmentID),
		Value: value,
		Time:  evt.At,
	})
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
