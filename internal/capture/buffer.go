package capture

// Buffer is the fixed-capacity sliding window of the most recent samples.
// It always holds exactly Len() samples, oldest first. It is not safe for
// concurrent use; a classifier's cycle goroutine is its only writer.
type Buffer struct {
	window  []float32
	scratch []float32
}

// NewBuffer returns a zero-filled window of the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		window:  make([]float32, capacity),
		scratch: make([]float32, capacity),
	}
}

// Len returns the window capacity.
func (b *Buffer) Len() int {
	return len(b.window)
}

// PushFrame reads up to Len() samples from src without blocking and slides
// them into the window. On a read error the window is left unchanged and
// the count is 0.
func (b *Buffer) PushFrame(src Source) (int, error) {
	n, err := src.Read(b.scratch)
	if err != nil {
		return 0, err
	}
	n = min(max(n, 0), len(b.scratch))
	b.Push(b.scratch[:n])
	return n, nil
}

// Push slides frame into the window: the oldest len(frame) samples are
// discarded and frame is appended at the tail. A frame at least as long as
// the window replaces it with the frame's last Len() samples.
func (b *Buffer) Push(frame []float32) {
	n := len(frame)
	switch {
	case n == 0:
		return
	case n >= len(b.window):
		copy(b.window, frame[n-len(b.window):])
	default:
		copy(b.window, b.window[n:])
		copy(b.window[len(b.window)-n:], frame)
	}
}

// Snapshot returns a copy of the window.
func (b *Buffer) Snapshot() []float32 {
	out := make([]float32, len(b.window))
	copy(out, b.window)
	return out
}

// Reset zero-fills the window.
func (b *Buffer) Reset() {
	clear(b.window)
}
