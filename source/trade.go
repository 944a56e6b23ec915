package source

import (
	"encoding/binary"
	"fmt"
)

// Trade is one market trade read off the input topic.
type Trade struct {
	Ticker   string
	Time     int64
	Price    int64
	Quantity int64
}

// DeserializationError reports a malformed input record. The record is
// skipped, the pipeline keeps running.
type DeserializationError struct {
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization failed: %s", e.Reason)
}

const maxTickerLength = 1 << 10

// EncodeTrade writes the wire layout: big-endian i32 ticker length, ticker
// bytes, then i64 time, price and quantity.
func EncodeTrade(trade Trade) []byte {
	buffer := make([]byte, 4+len(trade.Ticker)+24)
	binary.BigEndian.PutUint32(buffer, uint32(len(trade.Ticker)))
	copy(buffer[4:], trade.Ticker)
	offset := 4 + len(trade.Ticker)
	binary.BigEndian.PutUint64(buffer[offset:], uint64(trade.Time))
	binary.BigEndian.PutUint64(buffer[offset+8:], uint64(trade.Price))
	binary.BigEndian.PutUint64(buffer[offset+16:], uint64(trade.Quantity))
	return buffer
}

func DecodeTrade(payload []byte) (Trade, error) {
	if len(payload) < 4 {
		return Trade{}, &DeserializationError{Reason: "record shorter than ticker length prefix"}
	}
	tickerLength := int(binary.BigEndian.Uint32(payload))
	if tickerLength <= 0 || tickerLength > maxTickerLength {
		return Trade{}, &DeserializationError{Reason: fmt.Sprintf("invalid ticker length %d", tickerLength)}
	}
	if len(payload) != 4+tickerLength+24 {
		return Trade{}, &DeserializationError{Reason: fmt.Sprintf("record length %d does not match ticker length %d", len(payload), tickerLength)}
	}
	offset := 4 + tickerLength
	return Trade{
		Ticker:   string(payload[4:offset]),
		Time:     int64(binary.BigEndian.Uint64(payload[offset:])),
		Price:    int64(binary.BigEndian.Uint64(payload[offset+8:])),
		Quantity: int64(binary.BigEndian.Uint64(payload[offset+16:])),
	}, nil
}
