package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// RequestEventProducer publishes support-request lifecycle events. Mocked in tests.
type RequestEventProducer interface {
	ProduceRequestEvent(ctx context.Context, event string, key string, payload map[string]interface{})
}

// Producer writes request events to a Kafka topic (best-effort, never blocks the API).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

var _ RequestEventProducer = (*Producer)(nil)

// NewProducer returns a producer. With no brokers or no topic every call is a no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceRequestEvent sends {"event": event, ...payload}. key is the request
// id so that events of one request stay on one partition, in order.
func (p *Producer) ProduceRequestEvent(ctx context.Context, event string, key string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("kafka: marshal request event: %v", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		log.Printf("kafka: write request event %s: %v", event, err)
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a slice.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
