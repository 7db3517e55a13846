// Package fusion is the boundary between the transport layer and the
// decision rules. Typed subscribers and the tablet extractor write the
// latest value of each input into a Board; a Loop periodically snapshots
// the board, asks a Decider for a command and publishes it.
//
// The rules themselves live behind Decider. HoldDecider is used when none
// is linked in.
package fusion
