package output

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/rclog/internal/security"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// KafkaConfig contains Kafka-specific configuration
type KafkaConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RequiredAcks     int16
	CompressionCodec string // none, gzip, snappy, lz4, zstd
	Version          string
	RateLimit        int // events per second, 0 = unlimited
	TLS              *security.TLSConfig
}

// KafkaPublisher sends one message per categorized event, keyed by category
type KafkaPublisher struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	limiter  *rate.Limiter
	stats    sinkStats
	closed   atomic.Bool
}

// NewSaramaConfig builds the producer configuration
func NewSaramaConfig(config KafkaConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	saramaConfig.ClientID = config.ClientID
	if saramaConfig.ClientID == "" {
		saramaConfig.ClientID = "rclog"
	}

	switch config.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	tlsConfig, err := security.LoadTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("kafka TLS: %w", err)
	}
	if tlsConfig != nil {
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = tlsConfig
	}

	if config.Version != "" {
		version, err := sarama.ParseKafkaVersion(config.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid Kafka version: %w", err)
		}
		saramaConfig.Version = version
	}

	return saramaConfig, nil
}

// NewKafkaPublisher connects a sync producer to the brokers
func NewKafkaPublisher(config KafkaConfig) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}

	if config.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}

	saramaConfig, err := NewSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaPublisher(config, producer), nil
}

func newKafkaPublisher(config KafkaConfig, producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{
		config:   config,
		producer: producer,
		limiter:  newLimiter(config.RateLimit),
	}
}

// Publish sends the events as a single SendMessages call
func (k *KafkaPublisher) Publish(ctx context.Context, events []types.CategorizedEvent) error {
	if k.closed.Load() {
		return fmt.Errorf("kafka publisher is closed")
	}
	if len(events) == 0 {
		return nil
	}

	if err := waitN(ctx, k.limiter, len(events)); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(events))
	var totalBytes int64
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			k.stats.failure(1, err)
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		messages = append(messages, &sarama.ProducerMessage{
			Topic: k.config.Topic,
			Key:   sarama.StringEncoder(event.Category),
			Value: sarama.ByteEncoder(value),
		})
		totalBytes += int64(len(value))
	}

	start := time.Now()
	if err := k.producer.SendMessages(messages); err != nil {
		failed := int64(len(messages))
		if perr, ok := err.(sarama.ProducerErrors); ok {
			failed = int64(len(perr))
		}
		k.stats.failure(failed, err)
		if sent := int64(len(messages)) - failed; sent > 0 {
			k.stats.success(sent, 0, time.Since(start))
		}
		return fmt.Errorf("failed to send messages to Kafka: %w", err)
	}

	k.stats.success(int64(len(messages)), totalBytes, time.Since(start))
	return nil
}

// Close closes the producer
func (k *KafkaPublisher) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

// Name returns the sink name
func (k *KafkaPublisher) Name() string {
	return "kafka"
}

// Metrics returns the current metrics
func (k *KafkaPublisher) Metrics() *SinkMetrics {
	return k.stats.snapshot()
}
