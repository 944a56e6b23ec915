package element

// Event is a keyed record with an event-time timestamp in epoch milliseconds.
// Immutable once ingested.
type Event[T any] struct {
	Key       string
	Timestamp int64
	Value     T
}
