// Package simulation generates signed events as a gossiping network would.
//
// Each call to Next picks a creator at random and creates an event whose
// self-parent is the creator's previous event and whose other-parent is the
// latest event of another random member. Birth rounds follow a private
// consensus instance fed with copies of the events, so they match the pending
// round a real node would observe. Some creators can be configured to run
// ahead of consensus, which produces future events.
package simulation
