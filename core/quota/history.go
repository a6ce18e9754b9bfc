// Package quota tracks outgoing API usage per remote service over a rolling
// 24 hour window, at coarse time-bucket resolution.
package quota

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBucketWidth is the resolution of the histogram.
	DefaultBucketWidth = 10 * time.Minute
	// DefaultBuckets covers one day at DefaultBucketWidth.
	DefaultBuckets = 144
	// Window is the period quotas are expressed over.
	Window = 24 * time.Hour

	headerSize = 8 + 4 + 4 + 4
)

// ErrInvalidBlock is returned when a persisted block cannot be decoded.
var ErrInvalidBlock = errors.New("quota: invalid history block")

// History is a ring of per-bucket request counters plus a running total.
//
// Bucket i of the ring covers [base + k*width, base + (k+1)*width) for the
// k that maps onto it; head is the ring index of the bucket containing base.
// Counters saturate at math.MaxUint16.
type History struct {
	width   time.Duration
	buckets []uint16
	head    int
	base    time.Time
	total   int
}

// New creates an empty history whose current bucket starts at now truncated
// to the bucket width.
func New(width time.Duration, buckets int, now time.Time) *History {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &History{
		width:   width,
		buckets: make([]uint16, buckets),
		base:    now.Truncate(width),
	}
}

// NewDefault creates a one-day history with ten minute buckets.
func NewDefault(now time.Time) *History {
	return New(DefaultBucketWidth, DefaultBuckets, now)
}

// Increment records one outgoing call at now.
func (h *History) Increment(now time.Time) {
	h.RollForward(now)
	if h.buckets[h.head] == math.MaxUint16 {
		return
	}
	h.buckets[h.head]++
	h.total++
}

// RollForward advances the current bucket to the one containing now. Buckets
// whose time has fully elapsed are evicted from the running total and reused
// zero-filled. Times before the current bucket are ignored.
func (h *History) RollForward(now time.Time) {
	target := now.Truncate(h.width)
	if !target.After(h.base) {
		return
	}

	steps := int(target.Sub(h.base) / h.width)
	if steps >= len(h.buckets) {
		h.clear()
		h.base = target
		return
	}

	for i := 0; i < steps; i++ {
		h.head = (h.head + 1) % len(h.buckets)
		h.total -= int(h.buckets[h.head])
		h.buckets[h.head] = 0
	}
	h.base = target
}

// Reset zeroes every counter and restarts the window at now.
func (h *History) Reset(now time.Time) {
	h.clear()
	h.base = now.Truncate(h.width)
}

// CountInPeriod sums the most recent buckets covering d, including the
// current one. Periods longer than the ring return the running total.
func (h *History) CountInPeriod(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	if d >= h.width*time.Duration(len(h.buckets)) {
		return h.total
	}
	n := int(d / h.width)
	if d%h.width != 0 {
		n++
	}
	sum := 0
	idx := h.head
	for i := 0; i < n; i++ {
		sum += int(h.buckets[idx])
		idx--
		if idx < 0 {
			idx = len(h.buckets) - 1
		}
	}
	return sum
}

// Total returns the running total over the whole ring.
func (h *History) Total() int {
	return h.total
}

// Base returns the start of the current bucket.
func (h *History) Base() time.Time {
	return h.base
}

// Headroom returns how many more calls fit under limit in the last day.
func (h *History) Headroom(limit int) int {
	left := limit - h.CountInPeriod(Window)
	if left < 0 {
		return 0
	}
	return left
}

func (h *History) clear() {
	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.head = 0
	h.total = 0
}

// MarshalBinary encodes the history as a fixed-size block:
// base unix seconds, total, head, bucket count, then the buckets.
func (h *History) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize+2*len(h.buckets))
	binary.LittleEndian.PutUint64(out[0:8], uint64(h.base.Unix()))
	binary.LittleEndian.PutUint32(out[8:12], uint32(h.total))
	binary.LittleEndian.PutUint32(out[12:16], uint32(h.head))
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(h.buckets)))
	for i, b := range h.buckets {
		binary.LittleEndian.PutUint16(out[headerSize+2*i:], b)
	}
	return out, nil
}

// UnmarshalBinary decodes a block written by MarshalBinary. The bucket width
// of the receiver is kept; its ring is resized to the block's bucket count.
func (h *History) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidBlock, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[16:20]))
	if n <= 0 || len(data) != headerSize+2*n {
		return fmt.Errorf("%w: bucket count %d for %d bytes", ErrInvalidBlock, n, len(data))
	}
	head := int(binary.LittleEndian.Uint32(data[12:16]))
	if head >= n {
		return fmt.Errorf("%w: head %d out of range", ErrInvalidBlock, head)
	}

	buckets := make([]uint16, n)
	total := 0
	for i := range buckets {
		buckets[i] = binary.LittleEndian.Uint16(data[headerSize+2*i:])
		total += int(buckets[i])
	}
	if total != int(binary.LittleEndian.Uint32(data[8:12])) {
		return fmt.Errorf("%w: total mismatch", ErrInvalidBlock)
	}

	if h.width <= 0 {
		h.width = DefaultBucketWidth
	}
	h.buckets = buckets
	h.head = head
	h.total = total
	h.base = time.Unix(int64(binary.LittleEndian.Uint64(data[0:8])), 0).UTC()
	return nil
}
