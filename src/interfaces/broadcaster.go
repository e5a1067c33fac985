package interfaces

import "insight-stream/src/models"

// -----------------------------------------------------------------------------
// IBroadcaster is the contract the scheduler publishes snapshots through.
// -----------------------------------------------------------------------------

type IBroadcaster interface {

	// -----------------------------------------------------------------------------
	// Publish hands a fresh snapshot to the hub for fan-out. Never blocks
	// on subscriber I/O; stale snapshots (older ComputedAt than the one
	// already held for the kind) are discarded.
	Publish(snapshot *models.MSnapshot)

	// -----------------------------------------------------------------------------
	// SubscriberCount reports the current number of live subscribers.
	SubscriberCount() int

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully, closing subscriber channels
	Stop() error
}
