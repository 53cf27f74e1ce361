// Package window classifies events as ancient and carries the event window.
//
// An event is ancient when its indicator value is strictly below the ancient
// threshold of the current window. The indicator is either the event's
// generation or its birth round, selected by the AncientMode. The mode is a
// tagged value and Select is the only place where the two interpretations are
// distinguished.
//
// EventWindow is an immutable value. Consensus produces a new one every time it
// decides a round and every consumer receives it by value, so a reader never
// observes a partially updated window.
package window
