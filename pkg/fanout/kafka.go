// Package fanout publishes stored messages to the realtime bus. Delivery
// is best-effort: by the time a publish runs the message is already
// durable, so publish failures are observed by the caller but never fail
// the enclosing request.
package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/driftroom/driftroom/pkg/model"
)

// Publisher broadcasts a stored message on its room's channel.
type Publisher interface {
	Publish(ctx context.Context, roomID string, msg model.Message) error
	Close() error
}

// KafkaPublisher writes chat.message events to a single topic, keyed by
// room ID so events for one room land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish sends the message's chat.message event. The token is stripped
// before the message leaves the store's trust boundary: live events carry
// no credentials, for anyone.
func (p *KafkaPublisher) Publish(ctx context.Context, roomID string, msg model.Message) error {
	data, err := encodeEvent(roomID, msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(roomID),
		Value: data,
		Time:  time.Now(),
	})
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(roomID string, msg model.Message) ([]byte, error) {
	return json.Marshal(model.Event{
		Event:   model.EventChatMessage,
		RoomID:  roomID,
		Message: msg.Public(),
	})
}
