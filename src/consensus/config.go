package consensus

import (
	"time"

	"github.com/mosaicnetworks/eventcore/src/window"
)

const (
	// DefaultRoundsNonAncient is the number of decided rounds whose events
	// are retained.
	DefaultRoundsNonAncient int64 = 26
	// DefaultMinTransIncrement separates the consensus timestamps of
	// consecutive transactions.
	DefaultMinTransIncrement = 1000 * time.Nanosecond
	// DefaultCoinRoundFreq defines the frequency of coin rounds.
	DefaultCoinRoundFreq int64 = 4
)

// Config holds the consensus parameters. They must be identical on every node,
// except RoundSnapshots which is local.
type Config struct {
	Mode              window.AncientMode
	RoundsNonAncient  int64
	MinTransIncrement time.Duration
	CoinRoundFreq     int64

	//attach a complete snapshot to every decided round
	RoundSnapshots bool
}

// DefaultConfig returns the default parameters in birth round mode.
func DefaultConfig() Config {
	return Config{
		Mode:              window.BirthRoundThreshold,
		RoundsNonAncient:  DefaultRoundsNonAncient,
		MinTransIncrement: DefaultMinTransIncrement,
		CoinRoundFreq:     DefaultCoinRoundFreq,
	}
}
