package models

// -----------------------------------------------------------------------------
// MClientCommand for websocket client messages
// -----------------------------------------------------------------------------

// Commands:
//   "subscribe" - select the snapshot kinds the client wants pushed
//   "refresh"   - request an immediate recompute of one kind
type MClientCommand struct {
	Command string   `json:"command"`
	Kinds   []string `json:"kinds"`
	Kind    string   `json:"kind"`
}
