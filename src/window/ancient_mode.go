package window

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/eventcore/src/common"
)

const (
	// GenerationUndefined is the generation of a missing parent.
	GenerationUndefined int64 = 0
	// RoundUndefined is the round of an event that has not been assigned one.
	RoundUndefined int64 = 0
	// FirstGeneration is the generation of an event without parents.
	FirstGeneration int64 = 1
	// FirstRound is the first consensus round.
	FirstRound int64 = 1
)

// AncientMode selects which indicator value is compared against the ancient
// threshold.
type AncientMode int

const (
	// GenerationThreshold uses 1 + max(parent generations).
	GenerationThreshold AncientMode = iota
	// BirthRoundThreshold uses the round in effect when the event was created.
	BirthRoundThreshold
)

// Indicated is implemented by anything that carries both indicator values.
type Indicated interface {
	Generation() int64
	BirthRound() int64
}

// Select returns the indicator value the mode uses, given both candidates.
func (m AncientMode) Select(generation, birthRound int64) int64 {
	switch m {
	case GenerationThreshold:
		return generation
	case BirthRoundThreshold:
		return birthRound
	default:
		common.Violation("window", "unknown ancient mode %d", int(m))
		return 0
	}
}

// Indicator returns the indicator value of e under mode m.
func (m AncientMode) Indicator(e Indicated) int64 {
	return m.Select(e.Generation(), e.BirthRound())
}

// Valid reports whether m is one of the known modes.
func (m AncientMode) Valid() bool {
	return m == GenerationThreshold || m == BirthRoundThreshold
}

func (m AncientMode) String() string {
	switch m {
	case GenerationThreshold:
		return "generation"
	case BirthRoundThreshold:
		return "birth-round"
	default:
		return fmt.Sprintf("AncientMode(%d)", int(m))
	}
}

// ParseAncientMode parses the configuration form of a mode.
func ParseAncientMode(s string) (AncientMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generation", "generation-threshold":
		return GenerationThreshold, nil
	case "birth-round", "birthround", "birth_round", "birth-round-threshold":
		return BirthRoundThreshold, nil
	default:
		return 0, fmt.Errorf("unknown ancient mode %q", s)
	}
}

// IsAncient is the ancientness test: a value is ancient iff it is strictly
// below the threshold.
func IsAncient(indicator, threshold int64) bool {
	return indicator < threshold
}
