// Package pipeline serializes the intake of events.
//
// A Node owns a future buffer and a consensus instance and drives them from a
// single goroutine:
//
//	Submit -> classify -> future buffer -> consensus -> Rounds()
//	                           ^                |
//	                           +-- new window --+
//
// Every request, whether it carries an event, a window update, a Clear or a
// Restore, goes through the same channel, so the buffer and consensus never
// see two calls at once. When consensus decides rounds, the buffer receives
// the new window and the events it releases are fed back into consensus before
// the next request is read.
//
// Decided rounds are delivered only once the prehandle latch of each of their
// events has completed.
package pipeline
