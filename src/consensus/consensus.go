package consensus

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/crypto"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/metrics"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/sequence"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Consensus computes the consensus order of the events fed to AddEvent. It is
// not safe for concurrent use; the pipeline drives it from a single goroutine.
type Consensus struct {
	conf Config
	book *peers.PeerSet

	arena            *Arena
	rounds           *sequence.Map[*roundInfo]
	judgeGenerations *sequence.Map[int64]

	undetermined []Handle //FIFO queue of events whose round received is unknown
	stale        []*event.Event
	//hashes of the events made stale by each retained decided round
	staleHashes *sequence.Map[map[string]struct{}]

	window        window.EventWindow
	maxRound      int64
	restoredRound int64
	nextOrder     int64
	lastTimestamp time.Time
	markGen       int

	metrics *metrics.Registry
	logger  *logrus.Entry
}

// New creates a Consensus at genesis for the given address book.
func New(book *peers.PeerSet, conf Config, registry *metrics.Registry, logger *logrus.Entry) *Consensus {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if registry == nil {
		registry = metrics.Nop()
	}
	if conf.CoinRoundFreq < 2 {
		conf.CoinRoundFreq = DefaultCoinRoundFreq
	}
	if conf.RoundsNonAncient < 1 {
		conf.RoundsNonAncient = DefaultRoundsNonAncient
	}
	if conf.MinTransIncrement <= 0 {
		conf.MinTransIncrement = DefaultMinTransIncrement
	}

	c := &Consensus{
		conf:    conf,
		book:    book,
		arena:   NewArena(),
		metrics: registry,
		logger:  logger.WithField("component", "consensus"),
	}
	c.reset(window.Genesis(conf.Mode), window.RoundUndefined)

	return c
}

func (c *Consensus) reset(w window.EventWindow, lastDecided int64) {
	c.window = w
	c.arena.Reset()
	c.rounds = sequence.New[*roundInfo]("Rounds", c.oldestRetainedRound(lastDecided), sequence.RejectBelowFloor)
	c.judgeGenerations = sequence.New[int64]("JudgeGenerations", c.oldestRetainedRound(lastDecided), sequence.IgnoreBelowFloor)
	c.staleHashes = sequence.New[map[string]struct{}]("StaleEvents", c.oldestRetainedRound(lastDecided)-1, sequence.IgnoreBelowFloor)
	c.undetermined = nil
	c.stale = nil
	c.maxRound = lastDecided
	c.restoredRound = window.RoundUndefined
}

// oldestRetainedRound is the oldest round whose bookkeeping is kept once
// lastDecided is decided.
func (c *Consensus) oldestRetainedRound(lastDecided int64) int64 {
	r := lastDecided + 1 - c.conf.RoundsNonAncient
	if r < window.FirstRound {
		r = window.FirstRound
	}
	return r
}

/*******************************************************************************
Accessors
*******************************************************************************/

// Window returns the current event window.
func (c *Consensus) Window() window.EventWindow {
	return c.window
}

// LastDecidedRound returns the last decided round, or RoundUndefined.
func (c *Consensus) LastDecidedRound() int64 {
	return c.window.LatestConsensusRound()
}

// NextOrder returns the consensus order the next event will receive.
func (c *Consensus) NextOrder() int64 {
	return c.nextOrder
}

// Arena exposes the metadata store, mostly for tests and diagnostics.
func (c *Consensus) Arena() *Arena {
	return c.arena
}

// Undetermined returns the events whose round received is not known yet, in
// insertion order.
func (c *Consensus) Undetermined() []*event.Event {
	res := make([]*event.Event, 0, len(c.undetermined))
	for _, h := range c.undetermined {
		if m := c.arena.Get(h); m != nil {
			res = append(res, m.Event)
		}
	}
	return res
}

// Stale returns the events that became ancient without reaching consensus
// since the previous call.
func (c *Consensus) Stale() []*event.Event {
	res := c.stale
	c.stale = nil
	return res
}

// State returns the lifecycle stage of e as far as consensus knows. Events
// that became stale are remembered for RoundsNonAncient+1 decided rounds;
// after that they are reported as DiscardedAncient.
func (c *Consensus) State(e *event.Event) EventState {
	if e.IsConsensus() {
		return ConsensusFinalized
	}
	h, ok := c.arena.Lookup(e.Hash())
	if !ok {
		if c.isStale(e.Hash()) {
			return DiscardedStale
		}
		if c.window.IsAncient(e) {
			return DiscardedAncient
		}
		return Received
	}
	m := c.arena.Get(h)
	if m.Event.IsConsensus() {
		return ConsensusFinalized
	}
	if m.cleared {
		return DiscardedStale
	}
	if m.IsWitness && m.Famous.Defined() {
		return FameDecided
	}
	return PendingConsensus
}

func (c *Consensus) isStale(hash []byte) bool {
	found := false
	c.staleHashes.Range(func(_ int64, hashes map[string]struct{}) bool {
		_, found = hashes[string(hash)]
		return !found
	})
	return found
}

/*******************************************************************************
Insertion
*******************************************************************************/

// AddEvent inserts e and runs consensus. It returns the rounds decided as a
// consequence, in order. Ancient events are ignored. An unknown creator, a
// duplicate, or a parent that is neither known nor ancient is an error and
// leaves the state unchanged.
func (c *Consensus) AddEvent(e *event.Event) ([]*Round, error) {
	if e == nil {
		common.Violation("consensus", "nil event")
	}

	if c.window.IsAncient(e) {
		c.logger.WithField("event", e.Hex()).Debug("Ignoring ancient event")
		return nil, nil
	}

	if _, ok := c.arena.Lookup(e.Hash()); ok {
		return nil, common.NewStoreErr("Event", common.KeyAlreadyExists, e.Hex())
	}

	creator, ok := c.book.Index(e.Creator())
	if !ok {
		return nil, common.NewStoreErr("Creator", common.UnknownParticipant, strconv.FormatUint(uint64(e.Creator()), 10))
	}

	sp, err := c.resolveParent(e.SelfParent())
	if err != nil {
		return nil, err
	}
	if sp != nil && sp.Creator != creator {
		return nil, fmt.Errorf("self-parent of %s has creator %d, not %d", e.Hex(), sp.Event.Creator(), e.Creator())
	}

	op, err := c.resolveParent(e.OtherParent())
	if err != nil {
		return nil, err
	}

	m := c.arena.Add(e)
	m.Creator = creator
	m.Seq = e.Generation()
	if sp != nil {
		m.SelfParent = sp.Handle
	}
	if op != nil {
		m.OtherParent = op.Handle
	}

	c.initCoordinates(m, sp, op)
	c.updateFirstSee(m)
	c.assignRound(m, sp, op)

	c.undetermined = append(c.undetermined, m.Handle)

	if !m.IsWitness {
		return nil, nil
	}

	c.registerWitness(m)

	return c.decideRounds(), nil
}

// resolveParent returns the metadata of a parent. Parents that are ancient,
// or born before consensus was restored from a snapshot, resolve to nil.
func (c *Consensus) resolveParent(d *event.Descriptor) (*Metadata, error) {
	if d == nil {
		return nil, nil
	}
	if h, ok := c.arena.Lookup(d.Hash); ok {
		return c.arena.Get(h), nil
	}
	if c.window.IsAncientValue(d.Indicator(c.conf.Mode)) || d.BirthRound <= c.restoredRound {
		return nil, nil
	}
	return nil, common.NewStoreErr("Parent", common.KeyNotFound, common.EncodeToString(d.Hash))
}

//initialize lastSee from the parents and firstSee for the creator
func (c *Consensus) initCoordinates(m, sp, op *Metadata) {
	n := c.book.Len()

	m.lastSee = make([]Coordinate, n)
	m.firstSee = make([]Coordinate, n)
	for i := 0; i < n; i++ {
		m.lastSee[i] = noCoordinate
		m.firstSee[i] = noCoordinate
	}

	for _, p := range []*Metadata{sp, op} {
		if p == nil {
			continue
		}
		c.checkMemoSize(p, p.lastSee, "lastSee")
		for i, coord := range p.lastSee {
			if coord.Seq > m.lastSee[i].Seq {
				m.lastSee[i] = coord
			}
		}
	}

	self := Coordinate{Handle: m.Handle, Seq: m.Seq}
	m.lastSee[m.Creator] = self
	m.firstSee[m.Creator] = self
}

//set m as the first descendant by its creator of every ancestor that does not
//have one yet. The self-parent chain of each last ancestor is walked until an
//event that already has one, or that is cleared, is found.
func (c *Consensus) updateFirstSee(m *Metadata) {
	c.markGen++
	self := Coordinate{Handle: m.Handle, Seq: m.Seq}

	for _, coord := range m.lastSee {
		h := coord.Handle
		for h != NoHandle {
			a := c.arena.Get(h)
			if a == nil || a.cleared || a.mark == c.markGen {
				break
			}
			a.mark = c.markGen
			c.checkMemoSize(a, a.firstSee, "firstSee")
			if a.firstSee[m.Creator].Valid() {
				break
			}
			a.firstSee[m.Creator] = self
			h = a.SelfParent
		}
	}
}

func (c *Consensus) assignRound(m, sp, op *Metadata) {
	e := m.Event

	if sp == nil && op == nil {
		if e.SelfParent() == nil && e.OtherParent() == nil {
			m.Round = window.FirstRound
		} else {
			//every parent is ancient or predates the snapshot
			m.Round = c.floorRound()
		}
		m.IsWitness = true
		return
	}

	parentRound := window.RoundUndefined
	for _, p := range []*Metadata{sp, op} {
		if p != nil && p.Round > parentRound {
			parentRound = p.Round
		}
	}

	m.Round = parentRound
	ri, ok := c.rounds.Get(parentRound)
	if !ok {
		//the round was expired; assume it is passed
		m.Round = parentRound + 1
	} else {
		count := 0
		for _, wh := range ri.witnesses {
			w := c.arena.Get(wh)
			if w != nil && c.stronglySee(m, w) {
				count++
			}
		}
		if count >= c.book.SuperMajority() {
			m.Round = parentRound + 1
		}
	}

	m.IsWitness = sp == nil || m.Round > sp.Round
}

func (c *Consensus) floorRound() int64 {
	r := c.LastDecidedRound()
	if r < window.FirstRound {
		r = window.FirstRound
	}
	return r
}

func (c *Consensus) registerWitness(m *Metadata) {
	ri, err := c.rounds.ComputeIfAbsent(m.Round, newRoundInfo)
	if err != nil {
		//round already expired: the witness cannot be famous
		m.Famous = common.False
		return
	}
	ri.witnesses = append(ri.witnesses, m.Handle)

	if m.Round > c.maxRound {
		c.maxRound = m.Round
	}

	m.stronglySeeP = make([]Handle, c.book.Len())
	for i := range m.stronglySeeP {
		m.stronglySeeP[i] = NoHandle
	}
	if prev, ok := c.rounds.Get(m.Round - 1); ok {
		for _, wh := range prev.witnesses {
			w := c.arena.Get(wh)
			if w != nil && c.stronglySee(m, w) {
				m.stronglySeeP[w.Creator] = wh
			}
		}
	}

	if ri.decided {
		//fame of the round is final; a late witness is not famous
		m.Famous = common.False
	}
}

/*******************************************************************************
Predicates
*******************************************************************************/

//true if y is an ancestor of x
func (c *Consensus) see(x, y *Metadata) bool {
	c.checkMemoSize(x, x.lastSee, "lastSee")
	return x.lastSee[y.Creator].Seq >= y.Seq
}

//true if x strongly sees y: a super-majority of members have an event that is
//an ancestor of x and a descendant of y
func (c *Consensus) stronglySee(x, y *Metadata) bool {
	c.checkMemoSize(x, x.lastSee, "lastSee")

	count := 0
	for _, coord := range x.lastSee {
		if !coord.Valid() {
			continue
		}
		l := c.arena.Get(coord.Handle)
		if l == nil {
			continue
		}
		if c.see(l, y) {
			count++
		}
	}
	return count >= c.book.SuperMajority()
}

// checkMemoSize panics when a memoization array was sized for another address
// book.
func (c *Consensus) checkMemoSize(m *Metadata, arr []Coordinate, name string) {
	if len(arr) != c.book.Len() {
		common.Violation("consensus", "%s of %s has %d entries, address book has %d",
			name, m.Event.Hex(), len(arr), c.book.Len())
	}
}

/*******************************************************************************
Fame
*******************************************************************************/

func (c *Consensus) decideFame() {
	for r := c.LastDecidedRound() + 1; r < c.maxRound; r++ {
		ri, ok := c.rounds.Get(r)
		if !ok {
			continue
		}
		c.voteRound(r, ri)
	}
}

//voteRound runs the election of the witnesses of round r. Votes are recomputed
//from scratch with one bit per candidate.
func (c *Consensus) voteRound(r int64, ri *roundInfo) {
	candidates := make([]*Metadata, len(ri.witnesses))
	undecided := 0
	for i, h := range ri.witnesses {
		candidates[i] = c.arena.Get(h)
		if candidates[i] != nil && !candidates[i].Famous.Defined() {
			undecided++
		}
	}
	if undecided == 0 {
		return
	}

	n := len(candidates)
	superMajority := c.book.SuperMajority()

VOTE_LOOP:
	for j := r + 1; j <= c.maxRound; j++ {
		rj, ok := c.rounds.Get(j)
		if !ok {
			break
		}
		diff := j - r

		for _, yh := range rj.witnesses {
			y := c.arena.Get(yh)
			if y == nil || y.cleared {
				continue
			}
			y.votes = NewBitset(n)

			for ci, x := range candidates {
				if x == nil {
					continue
				}
				if x.Famous.Defined() {
					y.votes.Set(ci, x.Famous == common.True)
					continue
				}

				if diff == 1 {
					y.votes.Set(ci, c.see(y, x))
					continue
				}

				//collect the votes of the round j-1 witnesses that y strongly
				//sees
				yays, nays := 0, 0
				for _, wh := range y.stronglySeeP {
					if wh == NoHandle {
						continue
					}
					w := c.arena.Get(wh)
					if w == nil || w.votes == nil || w.votes.Len() != n {
						continue
					}
					if w.votes.Get(ci) {
						yays++
					} else {
						nays++
					}
				}
				v := false
				t := nays
				if yays >= nays {
					v = true
					t = yays
				}

				if diff%c.conf.CoinRoundFreq > 0 {
					//normal round
					if t >= superMajority {
						x.Famous = common.FromBool(v)
						undecided--
					}
					y.votes.Set(ci, v)
				} else {
					//coin round
					if t >= superMajority {
						y.votes.Set(ci, v)
					} else {
						y.votes.Set(ci, middleBit(y.Event.Hash()))
					}
				}
			}

			if undecided == 0 {
				break VOTE_LOOP
			}
		}
	}
}

//witnessesDecided is true when a super-majority of witnesses is known and the
//fame of every known witness is decided
func (c *Consensus) witnessesDecided(ri *roundInfo) bool {
	count := 0
	for _, h := range ri.witnesses {
		w := c.arena.Get(h)
		if w == nil {
			continue
		}
		if !w.Famous.Defined() {
			return false
		}
		count++
	}
	return count >= c.book.SuperMajority()
}

/*******************************************************************************
Round decision
*******************************************************************************/

//decideRounds decides fame and processes every round that can be decided, in
//order. A round is never processed before all earlier rounds.
func (c *Consensus) decideRounds() []*Round {
	c.decideFame()
	return c.processDecidedRounds()
}

//processDecidedRounds processes the rounds following the last decided one
//whose witnesses all have a decided fame
func (c *Consensus) processDecidedRounds() []*Round {
	var res []*Round
	for {
		r := c.LastDecidedRound() + 1
		ri, ok := c.rounds.Get(r)
		if !ok || !c.witnessesDecided(ri) {
			break
		}
		res = append(res, c.processRound(r, ri))
	}
	return res
}

type receivedEvent struct {
	meta      *Metadata
	timestamp time.Time
	whitened  []byte
}

func (c *Consensus) processRound(r int64, ri *roundInfo) *Round {
	ri.decided = true

	judges := []*Metadata{}
	for _, h := range ri.witnesses {
		w := c.arena.Get(h)
		if w != nil && w.Famous == common.True {
			w.IsJudge = true
			judges = append(judges, w)
		}
	}
	sort.Slice(judges, func(i, j int) bool {
		if judges[i].Creator != judges[j].Creator {
			return judges[i].Creator < judges[j].Creator
		}
		return bytes.Compare(judges[i].Event.Hash(), judges[j].Event.Hash()) < 0
	})

	whitener := []byte{}
	for _, j := range judges {
		whitener = crypto.XOR(whitener, j.Event.Hash())
	}

	//an event is received in the first round where all the famous witnesses
	//see it
	received := []*receivedEvent{}
	remaining := make([]Handle, 0, len(c.undetermined))
	for _, h := range c.undetermined {
		x := c.arena.Get(h)
		if x == nil {
			continue
		}
		if x.Round < r && c.seenByAll(judges, x) {
			received = append(received, &receivedEvent{
				meta:      x,
				timestamp: c.medianTimestamp(judges, x),
				whitened:  crypto.XOR(whitener, x.Event.Hash()),
			})
			continue
		}
		remaining = append(remaining, h)
	}
	c.undetermined = remaining

	sort.Slice(received, func(i, j int) bool {
		if !received[i].timestamp.Equal(received[j].timestamp) {
			return received[i].timestamp.Before(received[j].timestamp)
		}
		return bytes.Compare(received[i].whitened, received[j].whitened) < 0
	})

	events := make([]*event.Event, len(received))
	for i, rev := range received {
		e := rev.meta.Event

		ts := rev.timestamp
		if !c.lastTimestamp.IsZero() {
			if earliest := c.lastTimestamp.Add(c.conf.MinTransIncrement); ts.Before(earliest) {
				ts = earliest
			}
		}

		e.SetConsensusData(c.nextOrder, ts, r)
		e.ConsensusReached(c.conf.MinTransIncrement)
		c.nextOrder++
		c.lastTimestamp = e.LastTransactionTimestamp()

		c.arena.Clear(rev.meta.Handle)
		events[i] = e
	}

	judgeEvents := make([]*event.Event, len(judges))
	for i, j := range judges {
		judgeEvents[i] = j.Event
	}

	c.advanceWindow(r, judges)
	c.metrics.RoundDecided(len(events))

	c.logger.WithFields(logrus.Fields{
		"round_received":    r,
		"judges":            len(judges),
		"events":            len(events),
		"undetermined":      len(c.undetermined),
		"pending_round":     c.window.PendingConsensusRound(),
		"ancient_threshold": c.window.AncientThreshold(),
	}).Debug("Decided round")

	round := &Round{
		Number: r,
		Events: events,
		Judges: judgeEvents,
		Window: c.window,
	}
	if c.conf.RoundSnapshots {
		round.Snapshot = c.Snapshot()
	}
	return round
}

func (c *Consensus) seenByAll(judges []*Metadata, x *Metadata) bool {
	if len(judges) < c.book.SuperMajority() {
		return false
	}
	for _, j := range judges {
		if !c.see(j, x) {
			return false
		}
	}
	return true
}

//medianTimestamp is the median of the creation times of the first events, by
//each judge's creator, that see x
func (c *Consensus) medianTimestamp(judges []*Metadata, x *Metadata) time.Time {
	c.checkMemoSize(x, x.firstSee, "firstSee")

	times := make([]time.Time, 0, len(judges))
	for _, j := range judges {
		coord := x.firstSee[j.Creator]
		if !coord.Valid() {
			continue
		}
		if f := c.arena.Get(coord.Handle); f != nil {
			times = append(times, f.Event.TimeCreated())
		}
	}
	return common.MedianTime(times)
}

//advanceWindow computes the window that follows the decision of round r,
//marks undetermined ancient events stale and expires ancient metadata
func (c *Consensus) advanceWindow(r int64, judges []*Metadata) {
	if len(judges) > 0 {
		minGen := judges[0].Event.Generation()
		for _, j := range judges[1:] {
			if g := j.Event.Generation(); g < minGen {
				minGen = g
			}
		}
		c.judgeGenerations.Insert(r, minGen)
	}

	oldest := c.oldestRetainedRound(r)

	generationThreshold := window.FirstGeneration
	if g, ok := c.judgeGenerations.Get(oldest); ok {
		generationThreshold = g
	}

	c.window = c.window.Advance(r, c.conf.Mode.Select(generationThreshold, oldest))
	c.rounds.ShiftWindow(oldest, nil)
	c.judgeGenerations.ShiftWindow(oldest, nil)

	//stale sets outlive the retained rounds by one decision
	c.staleHashes.ShiftWindow(oldest-1, nil)

	staleHashes := map[string]struct{}{}
	remaining := c.undetermined[:0]
	for _, h := range c.undetermined {
		x := c.arena.Get(h)
		if x == nil {
			continue
		}
		if c.window.IsAncient(x.Event) {
			c.arena.Clear(h)
			c.stale = append(c.stale, x.Event)
			staleHashes[string(x.Event.Hash())] = struct{}{}
			continue
		}
		remaining = append(remaining, h)
	}
	if stale := len(c.undetermined) - len(remaining); stale > 0 {
		c.staleHashes.Insert(r, staleHashes)
		c.metrics.Discarded(stale)
		c.logger.WithField("stale", stale).Debug("Events became ancient before consensus")
	}
	c.undetermined = remaining

	c.arena.Expire(c.window)
}

/*******************************************************************************
Helpers
*******************************************************************************/

func middleBit(hash []byte) bool {
	if len(hash) > 0 && hash[len(hash)/2] == 0 {
		return false
	}
	return true
}
