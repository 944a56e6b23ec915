package source

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"

	"github.com/jbartok/big-data-benchmark/element"
	"github.com/jbartok/big-data-benchmark/log"
)

type topicAndPartition struct {
	Topic     string
	Partition int32
}

// FormatFn turns a raw Kafka message into an event. Returning a
// *DeserializationError skips the record instead of failing the pipeline.
type FormatFn[T any] func(message *sarama.ConsumerMessage) (element.Event[T], error)

type KafkaConfig struct {
	SaramaConfig *sarama.Config
	Addresses    []string
	Topic        string
	GroupId      string
	Parallelism  int
}

// Kafka consumes one topic through a sarama consumer group; each Run call
// joins the group as one member.
type Kafka[T any] struct {
	config KafkaConfig
	format FormatFn[T]
	logger log.Logger

	//next offset to read per topic partition, checkpointed via Snapshot
	offsets *sync.Map

	mutex  sync.Mutex
	groups []sarama.ConsumerGroup

	deserializationFailures tally.Counter
	eventsRead              tally.Counter
}

func NewKafka[T any](config KafkaConfig, format FormatFn[T], scope tally.Scope, logger log.Logger) *Kafka[T] {
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	return &Kafka[T]{
		config:                  config,
		format:                  format,
		logger:                  logger.Named("kafka-source"),
		offsets:                 &sync.Map{},
		deserializationFailures: scope.Counter("deserialization_failures"),
		eventsRead:              scope.Counter("events_read"),
	}
}

func (s *Kafka[T]) Partitions() int {
	return s.config.Parallelism
}

func (s *Kafka[T]) Run(ctx context.Context, partition int, emit func(element.Event[T])) error {
	group, err := sarama.NewConsumerGroup(s.config.Addresses, s.config.GroupId, s.config.SaramaConfig)
	if err != nil {
		return errors.WithMessage(err, "failed to join consumer group")
	}
	s.mutex.Lock()
	s.groups = append(s.groups, group)
	s.mutex.Unlock()

	handler := &groupHandler[T]{source: s, emit: emit}
	for {
		if err := group.Consume(ctx, []string{s.config.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			s.logger.Warnw("consumer group session ended with error, rejoining.",
				"partition", partition, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (s *Kafka[T]) Snapshot() ([]byte, error) {
	offsets := map[topicAndPartition]int64{}
	s.offsets.Range(func(key, value any) bool {
		offsets[key.(topicAndPartition)] = value.(int64)
		return true
	})
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(offsets); err != nil {
		return nil, errors.WithMessage(err, "failed to encode kafka offsets")
	}
	return buffer.Bytes(), nil
}

func (s *Kafka[T]) Restore(state []byte) error {
	var offsets map[topicAndPartition]int64
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&offsets); err != nil {
		return errors.WithMessage(err, "failed to decode kafka offsets")
	}
	for tp, offset := range offsets {
		s.offsets.Store(tp, offset)
	}
	return nil
}

func (s *Kafka[T]) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var err error
	for _, group := range s.groups {
		if closeErr := group.Close(); closeErr != nil {
			err = closeErr
		}
	}
	s.groups = nil
	return err
}

type groupHandler[T any] struct {
	source *Kafka[T]
	emit   func(element.Event[T])
}

func (h *groupHandler[T]) Setup(session sarama.ConsumerGroupSession) error {
	h.source.offsets.Range(func(key, value any) bool {
		tp := key.(topicAndPartition)
		session.ResetOffset(tp.Topic, tp.Partition, value.(int64), "")
		return true
	})
	return nil
}

func (h *groupHandler[T]) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler[T]) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			event, err := h.source.format(message)
			if err != nil {
				var deserializationError *DeserializationError
				if errors.As(err, &deserializationError) {
					h.source.deserializationFailures.Inc(1)
					h.source.logger.Warnw("skipping malformed record.",
						"topic", message.Topic, "partition", message.Partition,
						"offset", message.Offset, "err", err)
				} else {
					return err
				}
			} else {
				h.source.eventsRead.Inc(1)
				h.emit(event)
			}
			h.source.offsets.Store(
				topicAndPartition{Topic: message.Topic, Partition: message.Partition},
				message.Offset+1)
		case <-session.Context().Done():
			return nil
		}
	}
}

// TradeFormat decodes the trade wire format, keying events by ticker and
// timestamping them with the trade time.
func TradeFormat(message *sarama.ConsumerMessage) (element.Event[Trade], error) {
	trade, err := DecodeTrade(message.Value)
	if err != nil {
		return element.Event[Trade]{}, err
	}
	return element.Event[Trade]{
		Key:       trade.Ticker,
		Timestamp: trade.Time,
		Value:     trade,
	}, nil
}
