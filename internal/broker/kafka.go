package broker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/logging"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/retry"
	"connector/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: constants.ServiceNameConnector}
}

// Publish keys records by connector message id so every message of one
// exchange lands on the same partition and keeps its order.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, env models.Envelope) error {
	if env.Metadata.TraceID == "" {
		env.Metadata.TraceID = tracing.TraceID(ctx)
	}
	key := env.Message.ConnectorMessageID
	if key == "" {
		key = env.ID
	}
	return p.write(ctx, topic, key, env)
}

func (p *KafkaProducer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	return p.write(ctx, topic, key, event)
}

func (p *KafkaProducer) write(ctx context.Context, topic, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		},
	)
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(body))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	mu          sync.Mutex
	readers     []*kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume runs cfg.Workers readers in the consumer group of topic. Each
// record is decoded into an Envelope, retried per the retry policy and
// dead-lettered when processing keeps failing or the error is fatal.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	return c.run(ctx, topic, func(msgCtx context.Context, m kafka.Message) error {
		var env models.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal message",
				"error", err,
				"topic", topic,
			)
			return nil
		}

		if env.Metadata.TraceID != "" {
			msgCtx = logging.WithTraceID(msgCtx, env.Metadata.TraceID)
		}
		msgCtx = logging.WithMessageID(msgCtx, env.Message.ConnectorMessageID)

		err := c.processWithRetry(msgCtx, topic, func(ctx context.Context) error {
			return handler(ctx, env)
		})
		if err == nil {
			return nil
		}

		c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
			"error", err,
			"topic", topic,
		)
		c.deadLetter(msgCtx, env, err, topic)
		return nil
	})
}

// ConsumeEvents is Consume for records that are not Envelopes. Failed
// events are logged and skipped.
func (c *KafkaConsumer) ConsumeEvents(ctx context.Context, topic string, handler EventHandlerFunc) error {
	return c.run(ctx, topic, func(msgCtx context.Context, m kafka.Message) error {
		err := c.processWithRetry(msgCtx, topic, func(ctx context.Context) error {
			return handler(ctx, m.Value)
		})
		if err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to process event",
				"error", err,
				"topic", topic,
			)
		}
		return nil
	})
}

func (c *KafkaConsumer) workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return 1
}

func (c *KafkaConsumer) newReader(topic string) *kafka.Reader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()
	return reader
}

func (c *KafkaConsumer) run(ctx context.Context, topic string, process func(context.Context, kafka.Message) error) error {
	c.logger.Infow("Creating Kafka readers",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"workers", c.workers(),
		"service_name", c.serviceName,
	)

	for i := 0; i < c.workers(); i++ {
		reader := c.newReader(topic)
		c.wg.Add(1)
		go func(worker int) {
			defer c.wg.Done()
			c.loop(ctx, reader, topic, worker, process)
		}(i)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) loop(ctx context.Context, reader *kafka.Reader, topic string, worker int, process func(context.Context, kafka.Message) error) {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"topic", topic,
		"worker", worker,
	)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"worker", worker,
					"reason", "context canceled",
				)
				return
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			time.Sleep(time.Second)
			continue
		}

		metrics.IncKafkaMessagesRead(c.serviceName, topic)
		metrics.ObserveKafkaMessageSize(c.serviceName, topic, "in", len(m.Value))

		msgCtx, span := tracing.StartSpanFromKafkaMessage(consumeCtx, "kafka.consume", m)
		_ = process(msgCtx, m)
		span.End()

		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
				"error", err,
				"topic", topic,
			)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.mu.Lock()
	for _, reader := range c.readers {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.readers = nil
	c.mu.Unlock()

	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			}
		}
	}
	c.wg.Wait()
	return err
}

func (c *KafkaConsumer) processWithRetry(ctx context.Context, topic string, fn func(context.Context) error) error {
	policy := retry.FromConfig(c.cfg.Retry)

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return fn(ctx)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func dlqReason(err error) string {
	var fatal retry.FatalError
	if stderrors.As(err, &fatal) && fatal.IsFatal() {
		return "fatal_error"
	}
	return "max_retries_exceeded"
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, env models.Envelope, err error, topic string) {
	if c.dlqProducer == nil || c.cfg.DLQTopic == "" {
		c.logger.WarnwCtx(ctx, "No DLQ configured, committing message to avoid blocking",
			"topic", topic,
		)
		return
	}
	if dlqErr := c.sendToDLQ(ctx, env, err, topic); dlqErr != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send message to DLQ",
			"error", dlqErr,
			"topic", topic,
		)
	}
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, env models.Envelope, originalErr error, sourceTopic string) error {
	reason := dlqReason(originalErr)
	if env.Metadata.DLQ == nil {
		env.Metadata.DLQ = make(map[string]interface{})
	}
	env.Metadata.DLQ["reason"] = originalErr.Error()
	env.Metadata.DLQ["kind"] = reason
	env.Metadata.DLQ["source_topic"] = sourceTopic
	env.Metadata.DLQ["timestamp"] = time.Now()

	err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, env)
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", originalErr.Error(),
	)

	return nil
}
