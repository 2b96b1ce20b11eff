package engine

import "boxhit-client/internal/protocol"

// DefaultPriceCapacity bounds the retained price series.
const DefaultPriceCapacity = 600

// priceRing keeps the most recent price points in timestamp order with
// ring-buffer eviction on overflow.
type priceRing struct {
	buf   []protocol.PricePoint
	head  int
	count int
}

func newPriceRing(capacity int) *priceRing {
	if capacity <= 0 {
		capacity = DefaultPriceCapacity
	}
	return &priceRing{buf: make([]protocol.PricePoint, capacity)}
}

// Append adds one point. Points whose timestamp regresses relative to
// the current tail are dropped, keeping the series non-decreasing.
func (r *priceRing) Append(p protocol.PricePoint) bool {
	if last, ok := r.Last(); ok && p.Timestamp < last.Timestamp {
		return false
	}
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = p
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
	return true
}

// Replace resets the ring to the given history, keeping only the most
// recent points when the history exceeds capacity.
func (r *priceRing) Replace(points []protocol.PricePoint) {
	r.head = 0
	r.count = 0
	start := 0
	if len(points) > len(r.buf) {
		start = len(points) - len(r.buf)
	}
	for _, p := range points[start:] {
		r.Append(p)
	}
}

func (r *priceRing) Last() (protocol.PricePoint, bool) {
	if r.count == 0 {
		return protocol.PricePoint{}, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

func (r *priceRing) Len() int {
	return r.count
}

// Points returns the retained series oldest first.
func (r *priceRing) Points() []protocol.PricePoint {
	out := make([]protocol.PricePoint, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
