package repository

import (
	"context"
	"fmt"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
)

// Publisher is the subset of the Kafka producer the auditor needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaDispatchAuditor publishes one JSON record per delivered
// notification, keyed by recipient so a recipient's records stay ordered.
type KafkaDispatchAuditor struct {
	pub   Publisher
	topic string
}

func NewKafkaDispatchAuditor(pub Publisher, topic string) *KafkaDispatchAuditor {
	return &KafkaDispatchAuditor{pub: pub, topic: topic}
}

var _ domrepo.DispatchAuditor = (*KafkaDispatchAuditor)(nil)

func (a *KafkaDispatchAuditor) Record(ctx context.Context, rec models.DispatchRecord) error {
	if err := a.pub.Publish(ctx, a.topic, []byte(rec.RecipientID), rec); err != nil {
		return fmt.Errorf("publish dispatch record: %w", err)
	}
	return nil
}
