package consensus

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
	"github.com/mosaicnetworks/eventcore/src/window"
)

/*******************************************************************************
Snapshots
*******************************************************************************/

// Snapshot returns the complete state as of the last decided round: the
// window, the counters and the working set of the open rounds. Hashes of stale
// events are not included.
func (c *Consensus) Snapshot() *snapshot.Snapshot {
	jg := make(map[int64]int64, c.judgeGenerations.Len())
	c.judgeGenerations.Range(func(r int64, g int64) bool {
		jg[r] = g
		return true
	})

	snap := &snapshot.Snapshot{
		Round:            c.LastDecidedRound(),
		Mode:             c.window.Mode(),
		PendingRound:     c.window.PendingConsensusRound(),
		AncientThreshold: c.window.AncientThreshold(),
		NextOrder:        c.nextOrder,
		LastTimestamp:    c.lastTimestamp,
		JudgeGenerations: jg,
		Complete:         true,
		MaxRound:         c.maxRound,
		RestoredRound:    c.restoredRound,
	}

	positions := make(map[Handle]int, c.arena.Len())
	c.arena.Range(func(m *Metadata) bool {
		positions[m.Handle] = len(positions)
		return true
	})
	position := func(h Handle) int {
		if i, ok := positions[h]; ok {
			return i
		}
		return -1
	}

	snap.Events = make([]*snapshot.Event, 0, len(positions))
	c.arena.Range(func(m *Metadata) bool {
		se := &snapshot.Event{
			Body:        m.Event.Body,
			Signature:   m.Event.Signature,
			Hash:        m.Event.Hash(),
			Round:       m.Round,
			Witness:     m.IsWitness,
			Famous:      m.Famous,
			Judge:       m.IsJudge,
			Cleared:     m.cleared,
			LastSee:     exportCoordinates(m.lastSee, position),
			SelfParent:  position(m.SelfParent),
			OtherParent: position(m.OtherParent),
			FirstSee:    exportCoordinates(m.firstSee, position),
		}
		if cd := m.Event.ConsensusData(); cd != nil {
			data := *cd
			se.Consensus = &data
		}
		if m.stronglySeeP != nil {
			se.StronglySeeP = make([]int, len(m.stronglySeeP))
			for i, h := range m.stronglySeeP {
				se.StronglySeeP[i] = position(h)
			}
		}
		snap.Events = append(snap.Events, se)
		return true
	})

	c.rounds.Range(func(r int64, ri *roundInfo) bool {
		sr := &snapshot.Round{
			Number:    r,
			Decided:   ri.decided,
			Witnesses: make([]int, len(ri.witnesses)),
		}
		for i, h := range ri.witnesses {
			sr.Witnesses[i] = position(h)
		}
		snap.Rounds = append(snap.Rounds, sr)
		return true
	})

	snap.Undetermined = make([]int, len(c.undetermined))
	for i, h := range c.undetermined {
		snap.Undetermined[i] = position(h)
	}

	return snap
}

func exportCoordinates(coords []Coordinate, position func(Handle) int) []snapshot.Coordinate {
	if coords == nil {
		return nil
	}
	res := make([]snapshot.Coordinate, len(coords))
	for i, coord := range coords {
		res[i] = snapshot.Coordinate{Index: position(coord.Handle), Seq: coord.Seq}
	}
	return res
}

// Restore drops every event and resumes from a snapshot.
//
// A complete snapshot rebuilds the working set of the open rounds, after which
// consensus proceeds exactly as it would have without stopping. The rounds that
// were already decidable when the snapshot was taken are processed and
// returned. Otherwise only the window and the counters are restored, and
// unknown parents born no later than the snapshot's pending round are treated
// as ancient.
func (c *Consensus) Restore(snap *snapshot.Snapshot) ([]*Round, error) {
	w := snap.Window()
	w.CheckMode("consensus", c.conf.Mode)

	if !snap.Complete {
		c.resume(w, snap.Round)
		c.nextOrder = snap.NextOrder
		c.lastTimestamp = snap.LastTimestamp
		for r, g := range snap.JudgeGenerations {
			c.judgeGenerations.Insert(r, g)
		}
		c.logRestore(snap, w)
		return nil, nil
	}

	events, creators, err := c.rebuildEvents(snap)
	if err != nil {
		return nil, err
	}

	c.reset(w, snap.Round)
	c.restoredRound = snap.RestoredRound
	c.maxRound = snap.MaxRound
	c.nextOrder = snap.NextOrder
	c.lastTimestamp = snap.LastTimestamp
	for r, g := range snap.JudgeGenerations {
		c.judgeGenerations.Insert(r, g)
	}

	handles := make([]Handle, len(events))
	for i, e := range events {
		m := c.arena.Add(e)
		m.Creator = creators[i]
		m.Seq = e.Generation()
		handles[i] = m.Handle
	}
	handle := func(i int) Handle {
		if i < 0 {
			return NoHandle
		}
		return handles[i]
	}

	for i, se := range snap.Events {
		m := c.arena.Get(handles[i])
		m.Round = se.Round
		m.IsWitness = se.Witness
		m.Famous = se.Famous
		m.IsJudge = se.Judge
		m.lastSee = importCoordinates(se.LastSee, handle)

		if se.Cleared {
			c.arena.Clear(m.Handle)
			continue
		}

		m.SelfParent = handle(se.SelfParent)
		m.OtherParent = handle(se.OtherParent)
		m.firstSee = importCoordinates(se.FirstSee, handle)
		if se.StronglySeeP != nil {
			m.stronglySeeP = make([]Handle, len(se.StronglySeeP))
			for j, p := range se.StronglySeeP {
				m.stronglySeeP[j] = handle(p)
			}
		}
	}

	for _, sr := range snap.Rounds {
		ri := &roundInfo{
			decided:   sr.Decided,
			witnesses: make([]Handle, len(sr.Witnesses)),
		}
		for i, p := range sr.Witnesses {
			ri.witnesses[i] = handle(p)
		}
		if _, err := c.rounds.Insert(sr.Number, ri); err != nil {
			return nil, errors.Wrapf(err, "restoring round %d", sr.Number)
		}
	}

	c.undetermined = make([]Handle, len(snap.Undetermined))
	for i, p := range snap.Undetermined {
		c.undetermined[i] = handle(p)
	}

	c.logRestore(snap, w)

	return c.processDecidedRounds(), nil
}

//rebuildEvents recreates the events of a complete snapshot and checks every
//reference before the current state is dropped
func (c *Consensus) rebuildEvents(snap *snapshot.Snapshot) ([]*event.Event, []int, error) {
	n := len(snap.Events)
	members := c.book.Len()

	checkIndex := func(i int) error {
		if i >= n {
			return errors.Errorf("snapshot of round %d refers to event %d of %d", snap.Round, i, n)
		}
		return nil
	}
	checkIndexes := func(name string, indexes []int, size int) error {
		if indexes != nil && size >= 0 && len(indexes) != size {
			return errors.Errorf("snapshot %s has %d entries, address book has %d", name, len(indexes), members)
		}
		for _, i := range indexes {
			if err := checkIndex(i); err != nil {
				return err
			}
		}
		return nil
	}
	checkCoordinates := func(name string, coords []snapshot.Coordinate) error {
		if coords != nil && len(coords) != members {
			return errors.Errorf("snapshot %s has %d entries, address book has %d", name, len(coords), members)
		}
		for _, coord := range coords {
			if err := checkIndex(coord.Index); err != nil {
				return err
			}
		}
		return nil
	}

	events := make([]*event.Event, n)
	creators := make([]int, n)
	for i, se := range snap.Events {
		e, err := event.NewEvent(se.Body, se.Signature)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "rebuilding snapshot event %d", i)
		}
		if !bytes.Equal(e.Hash(), se.Hash) {
			return nil, nil, errors.Errorf("snapshot event %d hashes to %s, not %s",
				i, e.Hex(), common.EncodeToString(se.Hash))
		}

		creator, ok := c.book.Index(e.Creator())
		if !ok {
			return nil, nil, common.NewStoreErr("Creator", common.UnknownParticipant, strconv.FormatUint(uint64(e.Creator()), 10))
		}

		if se.LastSee == nil {
			return nil, nil, errors.Errorf("snapshot event %s has no lastSee", e.Hex())
		}
		if err := checkCoordinates("lastSee", se.LastSee); err != nil {
			return nil, nil, err
		}
		if err := checkCoordinates("firstSee", se.FirstSee); err != nil {
			return nil, nil, err
		}
		if err := checkIndexes("stronglySeeP", se.StronglySeeP, members); err != nil {
			return nil, nil, err
		}
		if err := checkIndexes("parents", []int{se.SelfParent, se.OtherParent}, -1); err != nil {
			return nil, nil, err
		}

		if se.Consensus != nil {
			e.SetConsensusData(se.Consensus.Order, se.Consensus.Timestamp, se.Consensus.RoundReceived)
			e.ConsensusReached(c.conf.MinTransIncrement)
		}

		events[i] = e
		creators[i] = creator
	}

	for _, sr := range snap.Rounds {
		if err := checkIndexes("witnesses", sr.Witnesses, -1); err != nil {
			return nil, nil, err
		}
	}
	if err := checkIndexes("undetermined", snap.Undetermined, -1); err != nil {
		return nil, nil, err
	}

	return events, creators, nil
}

func importCoordinates(coords []snapshot.Coordinate, handle func(int) Handle) []Coordinate {
	if coords == nil {
		return nil
	}
	res := make([]Coordinate, len(coords))
	for i, coord := range coords {
		res[i] = Coordinate{Handle: handle(coord.Index), Seq: coord.Seq}
	}
	return res
}

// OverrideWindow drops every event and installs w, as when the node resumes
// from a window learned elsewhere. The order counter and the last timestamp
// are kept. Unknown parents born no later than the pending round of w are then
// treated as ancient.
func (c *Consensus) OverrideWindow(w window.EventWindow) {
	w.CheckMode("consensus", c.conf.Mode)
	c.resume(w, w.LatestConsensusRound())

	c.logger.WithFields(logrus.Fields{
		"pending_round":     w.PendingConsensusRound(),
		"ancient_threshold": w.AncientThreshold(),
	}).Debug("Overrode event window")
}

//resume resets to w with round decided and no retained events
func (c *Consensus) resume(w window.EventWindow, round int64) {
	c.reset(w, round)
	c.restoredRound = w.PendingConsensusRound()

	//the round is decided; witnesses attached to it are late
	if round >= window.FirstRound {
		ri := newRoundInfo()
		ri.decided = true
		c.rounds.Insert(round, ri)
	}
}

func (c *Consensus) logRestore(snap *snapshot.Snapshot, w window.EventWindow) {
	c.logger.WithFields(logrus.Fields{
		"round":             snap.Round,
		"complete":          snap.Complete,
		"events":            len(snap.Events),
		"undetermined":      len(c.undetermined),
		"pending_round":     w.PendingConsensusRound(),
		"ancient_threshold": w.AncientThreshold(),
	}).Debug("Restored consensus")
}
