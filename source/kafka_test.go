package source

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"

	"github.com/jbartok/big-data-benchmark/log"
)

func newTestKafka(t *testing.T, parallelism int) *Kafka[Trade] {
	t.Helper()
	return NewKafka[Trade](KafkaConfig{
		Addresses:   []string{"localhost:9092"},
		Topic:       "trades",
		GroupId:     "test",
		Parallelism: parallelism,
	}, TradeFormat, tally.NoopScope, log.Global())
}

func TestKafkaParallelismDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, newTestKafka(t, 0).Partitions())
	assert.Equal(t, 3, newTestKafka(t, 3).Partitions())
}

func TestKafkaOffsetsRoundTrip(t *testing.T) {
	src := newTestKafka(t, 1)
	src.offsets.Store(topicAndPartition{Topic: "trades", Partition: 0}, int64(42))
	src.offsets.Store(topicAndPartition{Topic: "trades", Partition: 1}, int64(7))

	stateBytes, err := src.Snapshot()
	require.NoError(t, err)

	restored := newTestKafka(t, 1)
	require.NoError(t, restored.Restore(stateBytes))

	offset, ok := restored.offsets.Load(topicAndPartition{Topic: "trades", Partition: 0})
	require.True(t, ok)
	assert.Equal(t, int64(42), offset)
	offset, ok = restored.offsets.Load(topicAndPartition{Topic: "trades", Partition: 1})
	require.True(t, ok)
	assert.Equal(t, int64(7), offset)
}

func TestTradeFormat(t *testing.T) {
	trade := Trade{Ticker: "GOOG", Time: 123456, Price: 99, Quantity: 10}
	event, err := TradeFormat(&sarama.ConsumerMessage{Value: EncodeTrade(trade)})
	require.NoError(t, err)
	assert.Equal(t, "GOOG", event.Key)
	assert.Equal(t, int64(123456), event.Timestamp)
	assert.Equal(t, trade, event.Value)
}

func TestTradeFormatMalformed(t *testing.T) {
	_, err := TradeFormat(&sarama.ConsumerMessage{Value: []byte{1, 2}})
	require.Error(t, err)
	var deserializationError *DeserializationError
	assert.True(t, errors.As(err, &deserializationError))
}
