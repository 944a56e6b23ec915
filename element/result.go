package element

// Result is the final value for one (key, window), produced exactly once and
// written append-only to the sink.
type Result[V any] struct {
	//window end timestamp, exclusive
	WindowEnd int64
	Key       string
	Value     V
	//wall-clock emission time and emission latency relative to the window end
	EmitTime int64
	Latency  int64
}
