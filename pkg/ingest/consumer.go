package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Defaults for the OCR results stream.
const (
	DefaultTopic         = "ocr.document.processed"
	DefaultConsumerGroup = "document-service-group"
)

// Consumer reads OCR results from the bus and feeds them to the
// pipeline. Processing errors are logged and the offset committed
// anyway so one poison message never blocks the stream.
type Consumer struct {
	kafkaClient *kgo.Client
	pipeline    *Pipeline
	logger      hclog.Logger
	stopCh      chan struct{}
}

// ConsumerConfig holds the bus wiring for the consumer.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Pipeline      *Pipeline
	Logger        hclog.Logger
}

// NewConsumer creates the OCR consumer. Offsets start at the beginning
// so documents scanned before the service came up are not lost.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),

		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),

		kgo.DisableAutoCommit(),

		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		kafkaClient: kafkaClient,
		pipeline:    cfg.Pipeline,
		logger:      cfg.Logger.Named("ocr-consumer"),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start runs the polling loop until Stop or context cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	group, _ := c.kafkaClient.GroupMetadata()
	c.logger.Info("starting ocr consumer", "consumer_group", group)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("ocr consumer stopped by context")
			return ctx.Err()

		case <-c.stopCh:
			c.logger.Info("ocr consumer stopped")
			return nil

		default:
			fetches := c.kafkaClient.PollFetches(ctx)

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					c.logger.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				for _, record := range p.Records {
					if err := c.pipeline.Process(ctx, record.Value); err != nil {
						// Swallow so the stream keeps moving.
						c.logger.Error("failed to process ocr message",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err,
						)
					}

					if err := c.kafkaClient.CommitRecords(ctx, record); err != nil {
						c.logger.Warn("failed to commit kafka offset",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
					}
				}
			})
		}
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	select {
	case <-c.stopCh:
		// Already stopped
	default:
		close(c.stopCh)
		c.kafkaClient.Close()
	}
}
