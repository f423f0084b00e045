// Package events publishes import lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ledger-dashboard/internal/logging"
)

// ImportCompleted is emitted once per import job reaching a terminal state.
type ImportCompleted struct {
	ImportID      string    `json:"importId"`
	WalletAddress string    `json:"walletAddress"`
	Network       string    `json:"network"`
	Status        string    `json:"status"`
	Inserted      int       `json:"inserted"`
	Duplicates    int       `json:"duplicates"`
	Error         string    `json:"error,omitempty"`
	FailedAssets  []string  `json:"failedAssets,omitempty"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// messageWriter is the subset of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes import events to one topic, keyed by wallet address.
type KafkaPublisher struct {
	writer messageWriter
	mu     sync.Mutex
}

// NewKafkaPublisher creates a publisher for brokers/topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishImportCompleted emits ev.
func (p *KafkaPublisher) PublishImportCompleted(ctx context.Context, ev ImportCompleted) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return fmt.Errorf("publisher closed")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.WalletAddress),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("import.completed")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"importId": ev.ImportID,
		"status":   ev.Status,
	}).Debug("Published import event")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		err := p.writer.Close()
		p.writer = nil
		return err
	}
	return nil
}
