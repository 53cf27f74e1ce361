// Package future buffers events whose birth round is ahead of consensus.
//
// Buffer is driven by a single pipeline stage: AddEvent, UpdateEventWindow and
// Clear must never run concurrently on the same instance. Events are held in a
// sequence.Map keyed by birth round whose floor is one past the pending
// consensus round. Advancing the window shifts the map, and every evicted event
// is either released, in ascending birth round then arrival order, or discarded
// if it became ancient in the meantime.
package future
