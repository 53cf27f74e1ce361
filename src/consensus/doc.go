/*
Package consensus orders events with hashgraph virtual voting.

Events enter through AddEvent in topological order. Each one gets a Metadata
slot in an Arena, addressed by Handle, where parent links are handles rather
than pointers. The slot holds the working set of the algorithm:

	lastSee       for every member, the latest ancestor created by that member
	firstSee      for every member, the first descendant created by that member
	stronglySeeP  for a witness, the witnesses of the previous round it strongly sees
	votes         the witness's votes in the election being computed
	mark          scratch used by traversals

Rounds are decided strictly in order. When round R is decided, every
undetermined event received in R gets its consensus data, its transactions are
timestamped and its slot is cleared: parent links, firstSee, stronglySeeP and
votes are dropped. What remains is a summary (round, sequence, creator and
lastSee), which later events still need to compute their own lastSee and
rounds. Summaries are expired once their event becomes ancient.

Deciding a round also produces the next EventWindow. In birth round mode the
ancient threshold is R+1-RoundsNonAncient; in generation mode it is the lowest
judge generation of that round.
*/
package consensus
