package server

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// ConnectProducer opens a synchronous producer that waits for all in-sync
// replicas.
func ConnectProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "connecting kafka producer")
	}
	return producer, nil
}

// KafkaPublisher sends every result as a JSON message keyed by its id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish implements Publisher.
func (k *KafkaPublisher) Publish(_ context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(result.ID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "publishing result %s to %s", result.ID, k.topic)
	}
	return nil
}

// Close closes the producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
