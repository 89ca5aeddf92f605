// Package accesslog ships per-request access log entries to Kafka.
package accesslog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration"`
	Service    string    `json:"service"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries to one topic, keyed by request id. The
// writer batches in the background; Close flushes what is still queued.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           100 * time.Millisecond,
			AllowAutoTopicCreation: true,
			Async:                  true,
			Completion:             logFailedBatch,
		},
		timeout: 10 * time.Second,
	}
}

func (s *KafkaSink) Write(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.RequestID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write log entry: %w", err)
	}
	return nil
}

func logFailedBatch(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	log.WithError(err).WithField("entries", len(messages)).Warn("[accesslog] failed to ship log batch")
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
