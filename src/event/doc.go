// Package event defines the event record handled by the consensus core.
//
// An Event is made of a Body, which is hashed and never changes once the Event
// is built, a Signature of that hash by the creator, and a consensus overlay
// that is written exactly once when the event reaches consensus. Setting the
// overlay a second time is a contract violation and panics.
//
// Every Event also carries a Prehandle latch. The application completes it once
// it has pre-processed the event's transactions, and the pipeline waits on it
// before handing a decided round downstream.
package event
