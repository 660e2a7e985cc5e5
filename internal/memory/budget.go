// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package memory accounts device buffer memory against a byte budget.
package memory

import (
	"errors"
	"fmt"
	"sync"
)

// Budget errors.
var (
	// ErrBudgetExceeded is returned when a reservation would exceed the budget.
	ErrBudgetExceeded = errors.New("memory: budget exceeded")

	// ErrBudgetClosed is returned when reserving from a closed budget.
	ErrBudgetClosed = errors.New("memory: budget closed")
)

// Unlimited disables the byte limit.
const Unlimited = 0

// Stats contains memory usage statistics.
type Stats struct {
	// TotalBytes is the budget in bytes, 0 when unlimited.
	TotalBytes uint64

	// UsedBytes is the currently reserved memory in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining budget, 0 when unlimited.
	AvailableBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// Allocations is the number of live reservations.
	Allocations int

	// Utilization is the fraction of budget used (0.0 to 1.0), 0 when unlimited.
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s Stats) String() string {
	if s.TotalBytes == 0 {
		return fmt.Sprintf("Memory[%d KB used, unlimited, %d allocations, peak %d KB]",
			s.UsedBytes/1024, s.Allocations, s.PeakBytes/1024)
	}
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d KB, %d allocations, peak %d KB]",
		s.Utilization*100,
		s.UsedBytes/1024,
		s.TotalBytes/1024,
		s.Allocations,
		s.PeakBytes/1024)
}

// ID identifies a reservation.
type ID uint64

type entry struct {
	label string
	bytes uint64
}

// Budget tracks reservations and enforces a byte limit.
// There is no eviction: a reservation that does not fit fails.
//
// Budget is safe for concurrent use.
type Budget struct {
	mu sync.Mutex

	limit  uint64
	used   uint64
	peak   uint64
	nextID ID

	entries map[ID]entry
	closed  bool
}

// NewBudget creates a budget of limit bytes. Unlimited (0) disables the limit.
func NewBudget(limit uint64) *Budget {
	return &Budget{
		limit:   limit,
		entries: make(map[ID]entry),
	}
}

// Reserve accounts for bytes under label and returns the reservation ID.
func (b *Budget) Reserve(label string, bytes uint64) (ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBudgetClosed
	}
	if b.limit != Unlimited {
		if bytes > b.limit {
			return 0, fmt.Errorf("%w: %s needs %d bytes, total budget is %d bytes",
				ErrBudgetExceeded, label, bytes, b.limit)
		}
		if b.used+bytes > b.limit {
			return 0, fmt.Errorf("%w: %s needs %d bytes, have %d bytes available",
				ErrBudgetExceeded, label, bytes, b.limit-b.used)
		}
	}

	b.nextID++
	id := b.nextID
	b.entries[id] = entry{label: label, bytes: bytes}
	b.used += bytes
	b.peak = max(b.peak, b.used)
	return id, nil
}

// Release returns a reservation to the budget. Unknown IDs are ignored,
// so releasing twice is harmless.
func (b *Budget) Release(id ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return
	}
	delete(b.entries, id)
	b.used -= e.bytes
}

// Stats returns current memory usage statistics.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalBytes:  b.limit,
		UsedBytes:   b.used,
		PeakBytes:   b.peak,
		Allocations: len(b.entries),
	}
	if b.limit != Unlimited {
		if b.used < b.limit {
			s.AvailableBytes = b.limit - b.used
		}
		s.Utilization = float64(b.used) / float64(b.limit)
	}
	return s
}

// SetLimit changes the byte limit. Live reservations are kept even if they
// exceed the new limit; further reservations fail until enough is released.
func (b *Budget) SetLimit(limit uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
}

// Labels returns the labels of live reservations, for leak reports.
func (b *Budget) Labels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.label)
	}
	return out
}

// Close drops all reservations. Reserve fails afterwards.
func (b *Budget) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.entries = nil
	b.used = 0
	b.closed = true
}
