package window

import "fmt"

// Window is a [Start, End) event-time interval in epoch milliseconds.
type Window struct {
	Start int64
	End   int64
}

// MaxTimestamp is the largest event timestamp that still belongs to the window.
func (w Window) MaxTimestamp() int64 {
	return w.End - 1
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start, w.End)
}
