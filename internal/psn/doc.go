// Package psn turns PosiStageNet datagrams into per-tracker state.
//
// A Session owns a tracker.Store and is the single entry point:
//
//	sess := psn.NewSession(psn.SessionOptions{})
//	snap, err := sess.Decode(datagram)
//	for id, rec := range snap.Trackers() { ... }
//
// Decoding never blocks and is bounded by the datagram length and
// wire.MaxDepth. Failed datagrams leave the store untouched and are reported
// with an error matching one of the Err* values.
package psn
