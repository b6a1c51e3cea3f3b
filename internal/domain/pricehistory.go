package domain

import (
	"time"

	"github.com/pkg/errors"
)

// MinHistoryLength is the smallest window that can still produce a volatility value.
const MinHistoryLength = 2

// PriceSample is a single recorded price observation.
type PriceSample struct {
	Price     Price     `json:"price"`
	Timestamp time.Time `json:"ts"`
}

// PriceHistory is a fixed-capacity FIFO of price samples backed by a ring buffer.
// Samples are kept in non-decreasing timestamp order.
type PriceHistory struct {
	buf  []PriceSample
	head int
	size int
}

// NewPriceHistory creates an empty history holding at most capacity samples.
func NewPriceHistory(capacity int) (*PriceHistory, error) {
	if capacity < MinHistoryLength {
		return nil, errors.Wrapf(ErrInvalidConfig, "history length must be >= %d, got %d", MinHistoryLength, capacity)
	}
	return &PriceHistory{buf: make([]PriceSample, capacity)}, nil
}

// Record appends a sample, evicting the oldest one when the buffer is full.
// A timestamp older than the newest sample is clamped to it.
func (h *PriceHistory) Record(price Price, ts time.Time) PriceSample {
	if last, ok := h.Latest(); ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}
	sample := PriceSample{Price: price, Timestamp: ts}

	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = sample
		h.size++
		return sample
	}

	h.buf[h.head] = sample
	h.head = (h.head + 1) % len(h.buf)
	return sample
}

// Len returns the number of retained samples.
func (h *PriceHistory) Len() int { return h.size }

// Cap returns the maximum number of retained samples.
func (h *PriceHistory) Cap() int { return len(h.buf) }

// Latest returns the newest sample.
func (h *PriceHistory) Latest() (PriceSample, bool) {
	if h.size == 0 {
		return PriceSample{}, false
	}
	return h.buf[(h.head+h.size-1)%len(h.buf)], true
}

// Samples returns the retained samples, oldest first.
func (h *PriceHistory) Samples() []PriceSample {
	out := make([]PriceSample, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Resize changes the capacity, keeping the newest samples that still fit.
func (h *PriceHistory) Resize(capacity int) error {
	if capacity < MinHistoryLength {
		return errors.Wrapf(ErrInvalidConfig, "history length must be >= %d, got %d", MinHistoryLength, capacity)
	}

	samples := h.Samples()
	if len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}

	buf := make([]PriceSample, capacity)
	copy(buf, samples)
	h.buf = buf
	h.head = 0
	h.size = len(samples)
	return nil
}
