package client

import (
	"sync"
	"time"
)

// TapFrame is one observed transport frame.
type TapFrame struct {
	Time time.Time
	Dir  Direction
	Kind Kind
	Data string
}

// TapBuffer keeps a bounded window of transport traffic for auxiliary
// display. It coalesces change notification through a dirty channel so a
// renderer can redraw at most once per frame regardless of arrival rate;
// frame order inside the buffer is strictly arrival order.
type TapBuffer struct {
	mu    sync.Mutex
	rows  []TapFrame
	max   int
	dirty chan struct{}
}

// NewTapBuffer creates a buffer keeping at most max frames (default 200).
func NewTapBuffer(max int) *TapBuffer {
	if max <= 0 {
		max = 200
	}
	return &TapBuffer{
		max:   max,
		dirty: make(chan struct{}, 1),
	}
}

// Hook returns the FrameHook to pass in Options.OnFrame.
func (b *TapBuffer) Hook() FrameHook {
	return func(dir Direction, kind Kind, data []byte) {
		b.push(TapFrame{Time: time.Now(), Dir: dir, Kind: kind, Data: string(data)})
	}
}

func (b *TapBuffer) push(f TapFrame) {
	b.mu.Lock()
	b.rows = append(b.rows, f)
	if excess := len(b.rows) - b.max; excess > 0 {
		b.rows = b.rows[excess:]
	}
	b.mu.Unlock()

	select {
	case b.dirty <- struct{}{}:
	default:
		// A redraw is already pending; arrivals coalesce.
	}
}

// C signals when the buffer has changed since the last receive.
func (b *TapBuffer) C() <-chan struct{} {
	return b.dirty
}

// Rows returns a copy of the buffered frames, oldest first.
func (b *TapBuffer) Rows() []TapFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TapFrame, len(b.rows))
	copy(out, b.rows)
	return out
}
