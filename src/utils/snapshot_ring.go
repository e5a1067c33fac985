package utils

import (
	"insight-stream/src/models"
)

// -----------------------------------------------------------------------------
// SnapshotRing is a fixed-size circular buffer of snapshots for one kind.
// Backs the /api/history endpoint so a freshly rendered chart can show a
// short trail without waiting for broadcasts to accumulate.
// -----------------------------------------------------------------------------

type SnapshotRing struct {
	data     []*models.MSnapshot
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewSnapshotRing creates a new buffer with fixed capacity
func NewSnapshotRing(capacity int) *SnapshotRing {
	if capacity <= 0 {
		capacity = 32
	}

	return &SnapshotRing{
		data:     make([]*models.MSnapshot, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a snapshot, overwriting the oldest entry when full.
func (rb *SnapshotRing) Append(snap *models.MSnapshot) {
	rb.data[rb.index] = snap
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// Latest returns the most recently appended snapshot, or nil when empty.
func (rb *SnapshotRing) Latest() *models.MSnapshot {
	if rb.size == 0 {
		return nil
	}
	idx := (rb.index - 1 + rb.capacity) % rb.capacity
	return rb.data[idx]
}

// -----------------------------------------------------------------------------

// GetAll returns all snapshots in insertion order (oldest to newest)
func (rb *SnapshotRing) GetAll() []*models.MSnapshot {
	if rb.size == 0 {
		return []*models.MSnapshot{}
	}

	result := make([]*models.MSnapshot, rb.size)

	var startIdx int
	if rb.size == rb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = rb.index
	}

	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *SnapshotRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *SnapshotRing) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *SnapshotRing) Clear() {
	rb.index = 0
	rb.size = 0
}
