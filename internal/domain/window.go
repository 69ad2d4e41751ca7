package domain

import "time"

// Window is the interval searched for new posts. Start is exclusive, End
// inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow derives the collection window from the stored watermark. A zero
// watermark means no round has completed yet, in which case the window
// covers only the lookback before roundStart.
func NewWindow(watermark time.Time, lookback time.Duration, roundStart time.Time) Window {
	if lookback < 0 {
		lookback = 0
	}
	anchor := watermark
	if anchor.IsZero() {
		anchor = roundStart
	}
	return Window{
		Start: anchor.Add(-lookback),
		End:   roundStart,
	}
}

func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}
