// Package engine contains the night loop and simulation logic.
//
// The Clock only knows about wall time: it calls back once per interval.
// The Engine owns the authoritative GameState. Each tick clones the current
// state, runs the tick systems over the clone in a fixed order
// (wake, care, cooldown, rest), applies the terminal check and swaps the
// result in. Player actions are applied under the same lock, so a tick never
// observes a half-applied action.
package engine
