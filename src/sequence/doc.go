// Package sequence implements a map keyed by a monotonically advancing
// sequence number, such as a round or a generation, with a floor below which
// nothing is retained.
//
// ShiftWindow is the only way entries leave the map in normal operation: every
// key below the new floor is handed to the eviction callback, in ascending
// order, before it is dropped. The floor never moves backward.
package sequence
